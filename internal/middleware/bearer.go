package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/auth"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
)

// BearerAuth validates the Authorization header and loads the user. The token
// carries a has_donated claim, but it is issuance-time data and deliberately
// ignored here: gating always reads the live flag from the store.
func BearerAuth(issuer *auth.Issuer, repo identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := issuer.Verify(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		user, err := repo.FindByID(c.UserContext(), claims.Subject)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", user.ID)
		c.Locals("token", token)
		return c.Next()
	}
}

// OptionalBearerAuth resolves the user when a valid token is present and
// passes through anonymously otherwise. Used by endpoints that serve both
// tiers, such as opening a viewing session.
func OptionalBearerAuth(issuer *auth.Issuer, repo identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}
		claims, err := issuer.Verify(token)
		if err != nil {
			return c.Next()
		}
		if user, err := repo.FindByID(c.UserContext(), claims.Subject); err == nil {
			c.Locals("user_id", user.ID)
			c.Locals("token", token)
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}
