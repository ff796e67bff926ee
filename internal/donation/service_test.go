package donation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
	"github.com/frantchessico/prato-frio-filme/internal/logging"
	"github.com/frantchessico/prato-frio-filme/internal/mpesa"
)

const (
	testMinimum  = int64(99)
	testValidity = 72 * time.Hour
)

func newFixture(t *testing.T, gateway mpesa.Gateway) (*Service, identity.Repository, analytics.Repository, identity.User) {
	t.Helper()
	users := identity.NewMemoryRepository()
	eventsRepo := analytics.NewMemoryRepository()
	events := analytics.NewService(eventsRepo, logging.Discard())
	svc := NewService(NewMemoryRepository(), users, gateway, events, logging.Discard(), testMinimum, testValidity)

	user := identity.User{
		ID:        uuid.NewString(),
		Phone:     "+258841234567",
		FirstName: "Ana",
		LastName:  "Macamo",
		CreatedAt: time.Now().UTC(),
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return svc, users, eventsRepo, user
}

func TestInitiateRejectsAmountBelowMinimum(t *testing.T) {
	svc, _, _, user := newFixture(t, mpesa.StaticGateway{})

	_, err := svc.Initiate(context.Background(), user.ID, user.Phone, 50)
	if !errors.Is(err, ErrAmountBelowMinimum) {
		t.Fatalf("expected ErrAmountBelowMinimum, got %v", err)
	}
}

func TestInitiateUnknownUser(t *testing.T) {
	svc, _, _, _ := newFixture(t, mpesa.StaticGateway{})

	_, err := svc.Initiate(context.Background(), uuid.NewString(), "+258841234567", 150)
	if !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestInitiateConfirmRoundTrip(t *testing.T) {
	svc, users, _, user := newFixture(t, mpesa.StaticGateway{})
	ctx := context.Background()

	result, err := svc.Initiate(ctx, user.ID, user.Phone, 150)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.Reference == "" || result.TransactionID == "" {
		t.Fatalf("missing reference or transaction id: %+v", result)
	}

	status, err := svc.StatusFor(ctx, user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.HasDonated {
		t.Fatalf("pending donation already grants access")
	}

	if err := svc.Confirm(ctx, result.Reference, map[string]any{"status": "completed"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	status, err = svc.StatusFor(ctx, user.ID)
	if err != nil {
		t.Fatalf("status after confirm: %v", err)
	}
	if !status.HasDonated {
		t.Fatalf("confirmed donation did not grant access: %+v", status)
	}
	if status.Amount != 150 {
		t.Fatalf("expected amount 150, got %d", status.Amount)
	}
	wantExpiry := status.Date.Add(testValidity)
	if !status.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, status.ExpiresAt)
	}

	fetched, err := users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("fetch user: %v", err)
	}
	if !fetched.HasDonated || fetched.DonationAmount != 150 {
		t.Fatalf("donor flag not persisted: %+v", fetched)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	svc, users, _, user := newFixture(t, mpesa.StaticGateway{})
	ctx := context.Background()

	result, err := svc.Initiate(ctx, user.ID, user.Phone, 200)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := svc.Confirm(ctx, result.Reference, nil); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	first, _ := users.FindByID(ctx, user.ID)

	// Duplicate provider callback.
	if err := svc.Confirm(ctx, result.Reference, nil); err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}
	second, _ := users.FindByID(ctx, user.ID)
	if !second.DonationDate.Equal(first.DonationDate) || !second.DonationExpiresAt.Equal(first.DonationExpiresAt) {
		t.Fatalf("duplicate confirm moved the donation window: %v vs %v", first.DonationExpiresAt, second.DonationExpiresAt)
	}
}

func TestConfirmUnknownReferenceIsNoOp(t *testing.T) {
	svc, _, _, _ := newFixture(t, mpesa.StaticGateway{})

	if err := svc.Confirm(context.Background(), "123456789", nil); err != nil {
		t.Fatalf("unknown reference must be acknowledged, got %v", err)
	}
}

func TestGatewayFailureRecordsNoRowButOneEvent(t *testing.T) {
	svc, _, eventsRepo, user := newFixture(t, mpesa.FailingGateway{Err: errors.New("INS-13: invalid msisdn")})
	ctx := context.Background()

	_, err := svc.Initiate(ctx, user.ID, user.Phone, 150)
	if !errors.Is(err, mpesa.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	events, err := eventsRepo.Recent(ctx, time.Time{}, analytics.CategoryDonation, 10)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 1 || events[0].Name != "donation_failed" {
		t.Fatalf("expected one donation_failed event, got %+v", events)
	}
	if phone, _ := events[0].Data["phone"].(string); phone == user.Phone {
		t.Fatalf("event carries the raw phone number")
	}
}

func TestStatusOfExpiredDonation(t *testing.T) {
	now := time.Now().UTC()
	user := identity.User{
		HasDonated:        true,
		DonationAmount:    150,
		DonationDate:      now.Add(-100 * time.Hour),
		DonationExpiresAt: now.Add(-28 * time.Hour),
	}

	status := StatusOf(user, now)
	if status.HasDonated {
		t.Fatalf("expired donation still grants access")
	}
	if !status.IsExpired {
		t.Fatalf("expired donation not reported as expired")
	}

	// A never-donor is not "expired".
	status = StatusOf(identity.User{}, now)
	if status.HasDonated || status.IsExpired {
		t.Fatalf("never-donor misreported: %+v", status)
	}
}
