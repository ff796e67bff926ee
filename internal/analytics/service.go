package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const recentEventLimit = 50

// Service is the analytics sink. Recording is fire and forget: a failed write
// is logged and never surfaces into the business flow that emitted it.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the analytics service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends an event. Callers treat this as best effort; only an invalid
// category is reported back, since that is a programming error.
func (s *Service) Record(ctx context.Context, event Event) error {
	if !ValidCategory(event.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, event.Category)
	}
	event.ID = uuid.New().String()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger.Warn("analytics event dropped",
			slog.String("event", event.Name),
			slog.String("category", event.Category),
			slog.Any("error", err))
	}
	return nil
}

// QueryInput selects the reporting window.
type QueryInput struct {
	Period   string // 7d, 30d, 90d, 1y
	Category string // optional filter
}

// Query assembles the aggregated report.
func (s *Service) Query(ctx context.Context, input QueryInput) (Report, error) {
	if input.Category != "" && !ValidCategory(input.Category) {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidCategory, input.Category)
	}

	now := time.Now().UTC()
	start := periodStart(now, input.Period)

	summary, err := s.repo.Summary(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return Report{}, err
	}
	byCategory, err := s.repo.CountByCategory(ctx, start)
	if err != nil {
		return Report{}, err
	}
	byStatus, err := s.repo.DonationsByStatus(ctx)
	if err != nil {
		return Report{}, err
	}
	recent, err := s.repo.Recent(ctx, start, input.Category, recentEventLimit)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Period:            normalizePeriod(input.Period),
		StartDate:         start,
		EndDate:           now,
		Summary:           summary,
		EventsByCategory:  byCategory,
		DonationsByStatus: byStatus,
		RecentEvents:      recent,
	}, nil
}

func normalizePeriod(period string) string {
	switch period {
	case "30d", "90d", "1y":
		return period
	default:
		return "7d"
	}
}

func periodStart(now time.Time, period string) time.Time {
	switch normalizePeriod(period) {
	case "30d":
		return now.AddDate(0, 0, -30)
	case "90d":
		return now.AddDate(0, 0, -90)
	case "1y":
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -7)
	}
}
