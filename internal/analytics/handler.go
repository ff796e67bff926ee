package analytics

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the reporting endpoint.
type Handler struct {
	svc *Service
}

// NewHandler constructs an analytics handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Report returns aggregated usage data for the requested period.
func (h *Handler) Report(c *fiber.Ctx) error {
	report, err := h.svc.Query(c.UserContext(), QueryInput{
		Period:   c.Query("period"),
		Category: c.Query("category"),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCategory) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "report unavailable")
	}
	return c.Status(http.StatusOK).JSON(report)
}
