package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists analytics events and serves the report aggregates.
type Repository interface {
	Insert(ctx context.Context, event Event) error
	Recent(ctx context.Context, since time.Time, category string, limit int) ([]Event, error)
	CountByCategory(ctx context.Context, since time.Time) (map[string]int64, error)
	DonationsByStatus(ctx context.Context) (map[string]int64, error)
	Summary(ctx context.Context, activeSince time.Time) (Summary, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed analytics repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, event Event) error {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		return err
	}
	var payload []byte
	if event.Data != nil {
		if payload, err = json.Marshal(event.Data); err != nil {
			return err
		}
	}
	var userID any
	if event.UserID != "" {
		userID = event.UserID
	}
	_, err = r.db.Exec(ctx, `INSERT INTO analytics_events (id, user_id, event, category, data, ip, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, userID, event.Name, event.Category, payload, event.IP, event.UserAgent, event.Timestamp.UTC())
	return err
}

func (r *PostgresRepository) Recent(ctx context.Context, since time.Time, category string, limit int) ([]Event, error) {
	const query = `SELECT id, COALESCE(user_id::text, ''), event, category, data, ip, user_agent, created_at
        FROM analytics_events
        WHERE created_at >= $1 AND ($2 = '' OR category = $2)
        ORDER BY created_at DESC LIMIT $3`
	rows, err := r.db.Query(ctx, query, since.UTC(), category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			id      uuid.UUID
			event   Event
			payload []byte
		)
		if err := rows.Scan(&id, &event.UserID, &event.Name, &event.Category, &payload,
			&event.IP, &event.UserAgent, &event.Timestamp); err != nil {
			return nil, err
		}
		event.ID = id.String()
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &event.Data)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) CountByCategory(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT category, COUNT(*) FROM analytics_events
        WHERE created_at >= $1 GROUP BY category`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCounts(rows)
}

func (r *PostgresRepository) DonationsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM donations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCounts(rows)
}

func (r *PostgresRepository) Summary(ctx context.Context, activeSince time.Time) (Summary, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM users),
        (SELECT COUNT(*) FROM donations),
        (SELECT COALESCE(SUM(amount), 0) FROM donations WHERE status = 'completed'),
        (SELECT COUNT(*) FROM sessions WHERE active AND expires_at > now() AND last_activity >= $1)`
	var s Summary
	err := r.db.QueryRow(ctx, query, activeSince.UTC()).Scan(
		&s.TotalUsers, &s.TotalDonations, &s.TotalAmount, &s.ActiveSessions)
	return s, err
}

func scanCounts(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) (map[string]int64, error) {
	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

type memoryRepository struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRepository builds an in-memory event sink for testing. Summary and
// donation aggregates are out of its reach and report zeroes.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Insert(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRepository) Recent(_ context.Context, since time.Time, category string, limit int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.events[i]
		if e.Timestamp.Before(since) {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepository) CountByCategory(_ context.Context, since time.Time) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int64)
	for _, e := range r.events {
		if !e.Timestamp.Before(since) {
			counts[e.Category]++
		}
	}
	return counts, nil
}

func (r *memoryRepository) DonationsByStatus(_ context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (r *memoryRepository) Summary(_ context.Context, _ time.Time) (Summary, error) {
	return Summary{}, nil
}
