package donation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists donation ledger rows.
type Repository interface {
	Create(ctx context.Context, d Donation) error
	FindByReference(ctx context.Context, reference string) (Donation, error)
	// MarkCompleted settles exactly one pending row for the reference. It
	// reports false when the row was not pending, so a duplicate confirmation
	// is detectable as a no-op rather than an error.
	MarkCompleted(ctx context.Context, reference string, completedAt time.Time, providerResponse map[string]any) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed donation repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d Donation) error {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return err
	}
	var payload []byte
	if d.ProviderResponse != nil {
		if payload, err = json.Marshal(d.ProviderResponse); err != nil {
			return err
		}
	}
	_, err = r.db.Exec(ctx, `INSERT INTO donations
        (id, user_id, phone, amount, reference, transaction_id, status, provider_response, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, userID, d.Phone, d.Amount, d.Reference, d.TransactionID, d.Status, payload, d.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateReference
	}
	return err
}

func (r *PostgresRepository) FindByReference(ctx context.Context, reference string) (Donation, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, phone, amount, reference,
        COALESCE(transaction_id, ''), status, provider_response, completed_at, created_at
        FROM donations WHERE reference = $1`, reference)

	var (
		id          uuid.UUID
		userID      uuid.UUID
		d           Donation
		payload     []byte
		completedAt *time.Time
	)
	err := row.Scan(&id, &userID, &d.Phone, &d.Amount, &d.Reference,
		&d.TransactionID, &d.Status, &payload, &completedAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Donation{}, ErrNotFound
		}
		return Donation{}, err
	}
	d.ID = id.String()
	d.UserID = userID.String()
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &d.ProviderResponse)
	}
	if completedAt != nil {
		d.CompletedAt = completedAt.UTC()
	}
	return d, nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, reference string, completedAt time.Time, providerResponse map[string]any) (bool, error) {
	var payload []byte
	if providerResponse != nil {
		var err error
		if payload, err = json.Marshal(providerResponse); err != nil {
			return false, err
		}
	}
	// Single row update guarded by status; settles at most once.
	cmd, err := r.db.Exec(ctx, `UPDATE donations
        SET status = 'completed', completed_at = $1, provider_response = COALESCE($2, provider_response)
        WHERE reference = $3 AND status = 'pending'`,
		completedAt.UTC(), payload, reference)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

type memoryRepository struct {
	mu        sync.RWMutex
	byRef     map[string]Donation
	insertSeq []string
}

// NewMemoryRepository builds an in-memory donation ledger for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{byRef: make(map[string]Donation)}
}

func (r *memoryRepository) Create(_ context.Context, d Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[d.Reference]; exists {
		return ErrDuplicateReference
	}
	r.byRef[d.Reference] = d
	r.insertSeq = append(r.insertSeq, d.Reference)
	return nil
}

func (r *memoryRepository) FindByReference(_ context.Context, reference string) (Donation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byRef[reference]
	if !ok {
		return Donation{}, ErrNotFound
	}
	return d, nil
}

func (r *memoryRepository) MarkCompleted(_ context.Context, reference string, completedAt time.Time, providerResponse map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byRef[reference]
	if !ok || d.Status != StatusPending {
		return false, nil
	}
	d.Status = StatusCompleted
	d.CompletedAt = completedAt
	if providerResponse != nil {
		d.ProviderResponse = providerResponse
	}
	r.byRef[reference] = d
	return true, nil
}
