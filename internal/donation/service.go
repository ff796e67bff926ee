package donation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
	"github.com/frantchessico/prato-frio-filme/internal/logging"
	"github.com/frantchessico/prato-frio-filme/internal/mpesa"
)

// Service is the donation ledger: it initiates charges against the gateway,
// settles them on provider confirmation and answers entitlement queries.
type Service struct {
	repo     Repository
	users    identity.Repository
	gateway  mpesa.Gateway
	events   *analytics.Service
	logger   *slog.Logger
	minimum  int64
	validity time.Duration
}

// NewService constructs the donation service.
func NewService(repo Repository, users identity.Repository, gateway mpesa.Gateway,
	events *analytics.Service, logger *slog.Logger, minimum int64, validity time.Duration) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		gateway:  gateway,
		events:   events,
		logger:   logger,
		minimum:  minimum,
		validity: validity,
	}
}

// InitiateResult is the outcome of a successfully initiated donation.
type InitiateResult struct {
	Reference     string
	TransactionID string
	Message       string
}

// Initiate validates the amount, charges the subscriber through the gateway
// and records a pending ledger row keyed by the provider reference. A gateway
// failure records no row but always leaves a failure event in analytics.
func (s *Service) Initiate(ctx context.Context, userID, phone string, amount int64) (InitiateResult, error) {
	if amount < s.minimum {
		return InitiateResult{}, fmt.Errorf("%w: minimum is %d MZN", ErrAmountBelowMinimum, s.minimum)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return InitiateResult{}, err
	}

	result, err := s.gateway.Charge(ctx, mpesa.ChargeInput{
		Phone:     phone,
		Amount:    amount,
		Reference: mpesa.NewReference(),
	})
	if err != nil {
		_ = s.events.Record(ctx, analytics.Event{
			UserID:   user.ID,
			Name:     "donation_failed",
			Category: analytics.CategoryDonation,
			Data: map[string]any{
				"amount": amount,
				"phone":  logging.MaskPhone(phone),
				"error":  err.Error(),
			},
		})
		return InitiateResult{}, fmt.Errorf("%w: %v", mpesa.ErrGateway, err)
	}

	row := Donation{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		Phone:            phone,
		Amount:           amount,
		Reference:        result.Reference,
		TransactionID:    result.TransactionID,
		Status:           StatusPending,
		ProviderResponse: result.Raw,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return InitiateResult{}, err
	}

	_ = s.events.Record(ctx, analytics.Event{
		UserID:   user.ID,
		Name:     "donation_initiated",
		Category: analytics.CategoryDonation,
		Data: map[string]any{
			"amount":    amount,
			"reference": result.Reference,
			"phone":     logging.MaskPhone(phone),
		},
	})

	return InitiateResult{
		Reference:     result.Reference,
		TransactionID: result.TransactionID,
		Message:       "payment initiated",
	}, nil
}

// Confirm settles the pending donation matching the reference. It is
// idempotent: confirming an already-completed reference is a no-op, and an
// unknown reference is logged and ignored so the provider callback can always
// be acknowledged.
func (s *Service) Confirm(ctx context.Context, reference string, providerPayload map[string]any) error {
	d, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("confirmation for unknown reference", slog.String("reference", reference))
			return nil
		}
		return err
	}

	completedAt := time.Now().UTC()
	settled, err := s.repo.MarkCompleted(ctx, reference, completedAt, providerPayload)
	if err != nil {
		return err
	}
	if !settled {
		// Already completed (or failed/cancelled): duplicate callback, no-op.
		return nil
	}

	expiresAt := completedAt.Add(s.validity)
	if err := s.users.SetDonor(ctx, d.UserID, d.Amount, completedAt, expiresAt); err != nil {
		return err
	}

	_ = s.events.Record(ctx, analytics.Event{
		UserID:   d.UserID,
		Name:     "donation_completed",
		Category: analytics.CategoryDonation,
		Data: map[string]any{
			"amount":    d.Amount,
			"reference": d.Reference,
			"phone":     logging.MaskPhone(d.Phone),
		},
	})

	s.logger.Info("donation completed",
		slog.String("reference", d.Reference),
		slog.Int64("amount", d.Amount))
	return nil
}

// StatusFor computes the entitlement view from the stored user fields. The
// validity window is enforced here, server side; the gate only consumes the
// resulting booleans.
func (s *Service) StatusFor(ctx context.Context, userID string) (Status, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return StatusOf(user, time.Now().UTC()), nil
}

// StatusOf derives the entitlement view at the given instant.
func StatusOf(user identity.User, now time.Time) Status {
	valid := user.HasDonated && !user.DonationExpiresAt.IsZero() && user.DonationExpiresAt.After(now)
	return Status{
		HasDonated: valid,
		Amount:     user.DonationAmount,
		Date:       user.DonationDate,
		ExpiresAt:  user.DonationExpiresAt,
		IsExpired:  user.HasDonated && !valid,
	}
}
