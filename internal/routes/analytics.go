package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
)

// RegisterAnalyticsRoutes wires the reporting endpoint behind authentication.
func RegisterAnalyticsRoutes(r fiber.Router, h *analytics.Handler, bearer fiber.Handler) {
	r.Get("/analytics", bearer, h.Report)
}
