package donation

import (
	"errors"
	"time"
)

// Donation statuses. A record only ever moves forward: pending settles to
// completed, failed or cancelled, and never transitions back.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	// ErrAmountBelowMinimum rejects donations under the configured floor.
	ErrAmountBelowMinimum = errors.New("donation amount below minimum")
	// ErrDuplicateReference indicates the provider reference already exists.
	ErrDuplicateReference = errors.New("duplicate donation reference")
	// ErrNotFound indicates no donation matches the reference.
	ErrNotFound = errors.New("donation not found")
)

// Donation is a ledger row for one donation attempt.
type Donation struct {
	ID            string
	UserID        string
	Phone         string
	Amount        int64
	Reference     string
	TransactionID string
	Status        string
	// ProviderResponse keeps the raw provider payload for audit.
	ProviderResponse map[string]any
	CompletedAt      time.Time
	CreatedAt        time.Time
}

// Status is the donor entitlement view consumed by the playback gate.
// HasDonated is the stored flag AND a non-expired validity window; IsExpired
// separates "donation lapsed" from "never donated".
type Status struct {
	HasDonated bool      `json:"hasDonated"`
	Amount     int64     `json:"donationAmount"`
	Date       time.Time `json:"donationDate"`
	ExpiresAt  time.Time `json:"donationExpiresAt"`
	IsExpired  bool      `json:"isExpired"`
}
