package watch

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the viewing-session endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a watch handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Start opens a viewing session. Authentication is optional: the bearer
// middleware, when a token is present, leaves user_id in locals.
func (h *Handler) Start(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	result, err := h.service.Start(c.UserContext(), StartInput{
		UserID:    userID,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "could not start session")
	}
	return c.Status(http.StatusCreated).JSON(result)
}

type progressRequest struct {
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// Progress receives the player's elapsed-time report.
func (h *Handler) Progress(c *fiber.Ctx) error {
	var req progressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ElapsedSeconds < 0 {
		return fiber.NewError(http.StatusBadRequest, "elapsedSeconds must not be negative")
	}
	snap, err := h.service.Progress(c.Params("id"), time.Duration(req.ElapsedSeconds*float64(time.Second)))
	if err != nil {
		return sessionError(err)
	}
	return c.Status(http.StatusOK).JSON(snap)
}

type remediationRequest struct {
	Outcome string `json:"outcome"`
}

// Remediation applies an auth/donation/dismissed outcome to the session.
// Auth and donation outcomes require a bearer token for the viewer.
func (h *Handler) Remediation(c *fiber.Ctx) error {
	var req remediationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	outcome := RemediationOutcome(req.Outcome)
	userID, _ := c.Locals("user_id").(string)
	if (outcome == OutcomeAuth || outcome == OutcomeDonation) && userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}

	snap, err := h.service.Remediation(c.UserContext(), c.Params("id"), outcome, userID)
	if err != nil {
		if errors.Is(err, ErrInvalidOutcome) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return sessionError(err)
	}
	return c.Status(http.StatusOK).JSON(snap)
}

type trackRequest struct {
	Language string `json:"language"`
	Quality  string `json:"quality"`
}

// Track records a language or quality switch without touching elapsed time.
func (h *Handler) Track(c *fiber.Ctx) error {
	var req trackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	snap, err := h.service.SwitchTrack(c.Params("id"), req.Language, req.Quality)
	if err != nil {
		return sessionError(err)
	}
	return c.Status(http.StatusOK).JSON(snap)
}

// End tears the viewing session down.
func (h *Handler) End(c *fiber.Ctx) error {
	if err := h.service.End(c.Params("id")); err != nil {
		return sessionError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func sessionError(err error) error {
	if errors.Is(err, ErrSessionNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, "internal error")
}
