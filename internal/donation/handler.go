package donation

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/identity"
	"github.com/frantchessico/prato-frio-filme/internal/mpesa"
)

// Handler exposes the donation endpoints and the provider webhook.
type Handler struct {
	svc *Service
}

// NewHandler constructs a donation handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type initiateRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Amount      int64  `json:"amount"`
}

// Initiate charges the viewer's mobile wallet and records a pending donation.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PhoneNumber == "" {
		return fiber.NewError(http.StatusBadRequest, "phoneNumber is required")
	}

	userID, _ := c.Locals("user_id").(string)
	result, err := h.svc.Initiate(c.UserContext(), userID, req.PhoneNumber, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrAmountBelowMinimum):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrUserNotFound):
			return fiber.NewError(http.StatusNotFound, "user not found")
		case errors.Is(err, mpesa.ErrGateway):
			return fiber.NewError(http.StatusInternalServerError, "payment could not be initiated")
		}
		return fiber.NewError(http.StatusInternalServerError, "payment could not be initiated")
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"reference":     result.Reference,
		"transactionId": result.TransactionID,
		"message":       result.Message,
	})
}

// Status returns the caller's donation entitlement.
func (h *Handler) Status(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	status, err := h.svc.StatusFor(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return fiber.NewError(http.StatusInternalServerError, "status unavailable")
	}
	return c.Status(http.StatusOK).JSON(status)
}

type webhookRequest struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// Webhook receives the payment provider callback. Only a body the parser
// cannot read is rejected; every parseable callback is acknowledged with 200
// so the provider never retries forever over a state we already settled.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}

	if req.Status == StatusCompleted && req.Reference != "" {
		var payload map[string]any
		_ = c.BodyParser(&payload)
		if err := h.svc.Confirm(c.UserContext(), req.Reference, payload); err != nil {
			return fiber.NewError(http.StatusInternalServerError, "confirmation failed")
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}
