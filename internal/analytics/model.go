package analytics

import (
	"errors"
	"time"
)

// Event categories. Membership is the only invariant on events.
const (
	CategoryAuth     = "auth"
	CategoryDonation = "donation"
	CategoryVideo    = "video"
	CategoryUser     = "user"
	CategorySystem   = "system"
)

// ErrInvalidCategory rejects events outside the category enum.
var ErrInvalidCategory = errors.New("invalid analytics category")

// Event is an append-only analytics record.
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Name      string         `json:"event"`
	Category  string         `json:"category"`
	Data      map[string]any `json:"data,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ValidCategory reports whether c belongs to the category enum.
func ValidCategory(c string) bool {
	switch c {
	case CategoryAuth, CategoryDonation, CategoryVideo, CategoryUser, CategorySystem:
		return true
	default:
		return false
	}
}

// Summary aggregates platform-wide counters for the reporting endpoint.
type Summary struct {
	TotalUsers     int64 `json:"totalUsers"`
	TotalDonations int64 `json:"totalDonations"`
	TotalAmount    int64 `json:"totalAmount"`
	ActiveSessions int64 `json:"activeSessions"`
}

// Report is the aggregated reporting payload.
type Report struct {
	Period            string           `json:"period"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           time.Time        `json:"endDate"`
	Summary           Summary          `json:"summary"`
	EventsByCategory  map[string]int64 `json:"eventsByCategory"`
	DonationsByStatus map[string]int64 `json:"donationsByStatus"`
	RecentEvents      []Event          `json:"recentEvents"`
}
