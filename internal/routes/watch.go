package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/watch"
)

// RegisterWatchRoutes wires the viewing-session endpoints. The bearer is
// optional on every route: anonymous viewers get the preview tier, and the
// remediation handler enforces authentication itself where an outcome needs it.
func RegisterWatchRoutes(r fiber.Router, h *watch.Handler, optionalBearer fiber.Handler) {
	group := r.Group("/watch/sessions", optionalBearer)
	group.Post("/", h.Start)
	group.Post("/:id/progress", h.Progress)
	group.Post("/:id/remediation", h.Remediation)
	group.Post("/:id/track", h.Track)
	group.Delete("/:id", h.End)
}
