package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Country headers set by the common edge providers, in lookup order.
var countryHeaders = []string{
	"X-Vercel-Ip-Country",
	"Cf-Ipcountry",
	"X-Country-Code",
	"Cloudfront-Viewer-Country",
}

// GeoBlock redirects requests from outside the allowed country to the
// restricted page. An undetectable country is also denied. This is a pure
// allow/redirect decision; nothing is recorded. The restricted page itself,
// health checks and the provider webhook are exempt so they stay reachable.
func GeoBlock(allowedCountry, blockedPath string, enabled bool) fiber.Handler {
	allowed := strings.ToUpper(allowedCountry)
	return func(c *fiber.Ctx) error {
		if !enabled {
			return c.Next()
		}
		path := c.Path()
		if path == blockedPath || path == "/healthz" || strings.HasPrefix(path, "/api/webhook/") {
			return c.Next()
		}

		country := ""
		for _, header := range countryHeaders {
			if v := c.Get(header); v != "" {
				country = strings.ToUpper(v)
				break
			}
		}

		if country != allowed {
			return c.Redirect(blockedPath, fiber.StatusTemporaryRedirect)
		}
		return c.Next()
	}
}
