package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RegisterBlockedRoute serves the notice shown to viewers outside the
// supported region. Geo filtering redirects here, so the page itself must
// stay reachable from anywhere.
func RegisterBlockedRoute(app *fiber.App) {
	app.Get("/blocked", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"error":   "region_not_supported",
			"message": "Este conteúdo está disponível apenas em Moçambique.",
		})
	})
}
