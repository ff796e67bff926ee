package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/frantchessico/prato-frio-filme/internal/donation"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
)

// Handler exposes register/login/logout endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Password    string `json:"password"`
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type userView struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	HasDonated  bool   `json:"hasDonated"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userView  `json:"user"`
}

// Register creates an account and returns a signed token.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Register(c.UserContext(), identity.Credentials{
		Phone:     req.PhoneNumber,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}, deviceOf(c))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserExists):
			return fiber.NewError(http.StatusConflict, "phone number already registered")
		case errors.Is(err, identity.ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "registration failed")
	}

	return c.Status(http.StatusCreated).JSON(toResponse(res))
}

// Login authenticates credentials and returns a fresh token. Failures share a
// single message so responses cannot be used to probe for accounts.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PhoneNumber == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "phoneNumber and password are required")
	}

	res, err := h.svc.Login(c.UserContext(), req.PhoneNumber, req.Password, deviceOf(c))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrValidation) {
			return fiber.NewError(http.StatusUnauthorized, "invalid phone or password")
		}
		return fiber.NewError(http.StatusInternalServerError, "login failed")
	}

	return c.Status(http.StatusOK).JSON(toResponse(res))
}

// Logout deactivates the presented session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	token, _ := c.Locals("token").(string)
	if err := h.svc.Logout(c.UserContext(), userID, token); err != nil {
		return fiber.NewError(http.StatusInternalServerError, "logout failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

func deviceOf(c *fiber.Ctx) Device {
	return Device{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}

func toResponse(res Result) authResponse {
	// hasDonated in the response is the live entitlement, not the token claim.
	status := donation.StatusOf(res.User, time.Now().UTC())
	return authResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User: userView{
			ID:          res.User.ID,
			PhoneNumber: res.User.Phone,
			FirstName:   res.User.FirstName,
			LastName:    res.User.LastName,
			HasDonated:  status.HasDonated,
		},
	}
}
