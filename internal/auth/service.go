package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
	"github.com/frantchessico/prato-frio-filme/internal/session"
)

// Service orchestrates registration and login: it delegates credential checks
// to identity, signs bearer tokens and keeps the session store in step.
type Service struct {
	ids      *identity.Service
	issuer   *Issuer
	sessions session.Store
	events   *analytics.Service
	logger   *slog.Logger
}

// NewService constructs the auth service.
func NewService(ids *identity.Service, issuer *Issuer, sessions session.Store,
	events *analytics.Service, logger *slog.Logger) *Service {
	return &Service{ids: ids, issuer: issuer, sessions: sessions, events: events, logger: logger}
}

// Device captures the client context stored with each session.
type Device struct {
	IP        string
	UserAgent string
}

// Result carries a signed token and the user it was issued for.
type Result struct {
	Token     string
	ExpiresAt time.Time
	User      identity.User
}

// Register creates the account and signs the user straight in.
func (s *Service) Register(ctx context.Context, creds identity.Credentials, device Device) (Result, error) {
	user, err := s.ids.Register(ctx, creds)
	if err != nil {
		return Result{}, err
	}

	res, err := s.issue(ctx, user, device)
	if err != nil {
		return Result{}, err
	}

	_ = s.events.Record(ctx, analytics.Event{
		UserID:   user.ID,
		Name:     "user_registered",
		Category: analytics.CategoryAuth,
	})
	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return res, nil
}

// Login authenticates and issues a fresh token and session.
func (s *Service) Login(ctx context.Context, phone, password string, device Device) (Result, error) {
	user, err := s.ids.Authenticate(ctx, phone, password)
	if err != nil {
		return Result{}, err
	}

	res, err := s.issue(ctx, user, device)
	if err != nil {
		return Result{}, err
	}

	_ = s.events.Record(ctx, analytics.Event{
		UserID:   user.ID,
		Name:     "user_login",
		Category: analytics.CategoryAuth,
	})
	return res, nil
}

// Logout deactivates the session behind the presented token. An unknown token
// is not an error; logout is idempotent from the client's point of view.
func (s *Service) Logout(ctx context.Context, userID, token string) error {
	if err := s.sessions.Deactivate(ctx, token); err != nil {
		s.logger.Debug("logout for unknown session", slog.Any("error", err))
	}
	_ = s.events.Record(ctx, analytics.Event{
		UserID:   userID,
		Name:     "user_logout",
		Category: analytics.CategoryAuth,
	})
	return nil
}

func (s *Service) issue(ctx context.Context, user identity.User, device Device) (Result, error) {
	now := time.Now().UTC()
	token, exp, err := s.issuer.Issue(user, now)
	if err != nil {
		return Result{}, err
	}

	err = s.sessions.Create(ctx, session.Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Token:        token,
		IP:           device.IP,
		UserAgent:    device.UserAgent,
		Active:       true,
		ExpiresAt:    exp,
		LastActivity: now,
		CreatedAt:    now,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Token: token, ExpiresAt: exp, User: user}, nil
}
