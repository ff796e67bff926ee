package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/donation"
)

// RegisterDonationRoutes wires donation endpoints. The webhook stays open;
// the provider does not authenticate, the ledger's own idempotency and
// reference matching protect it.
func RegisterDonationRoutes(r fiber.Router, h *donation.Handler, bearer fiber.Handler) {
	r.Post("/donation", bearer, h.Initiate)
	r.Get("/user/donation-status", bearer, h.Status)
	r.Post("/webhook/payment", h.Webhook)
}
