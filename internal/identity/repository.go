package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserExists indicates the phone number is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates no user matches the lookup key.
	ErrUserNotFound = errors.New("user not found")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
	// SetDonor flips the donor flag in a single row update. It is the only
	// mutation path for the donation fields.
	SetDonor(ctx context.Context, id string, amount int64, donatedAt, expiresAt time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, first_name, last_name, password_hash,
        has_donated, donation_amount, donation_date, donation_expires_at,
        last_login, created_at`

// Create inserts a new user. A duplicate phone yields ErrUserExists.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, first_name, last_name, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, user.Phone, user.FirstName, user.LastName, user.PasswordHash, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// RecordLogin stamps the last successful authentication time.
func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetDonor marks the user as a donor with the validity window in one update.
func (r *PostgresRepository) SetDonor(ctx context.Context, id string, amount int64, donatedAt, expiresAt time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users
        SET has_donated = TRUE, donation_amount = $1, donation_date = $2, donation_expires_at = $3
        WHERE id = $4`, amount, donatedAt.UTC(), expiresAt.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id                uuid.UUID
		user              User
		donationDate      *time.Time
		donationExpiresAt *time.Time
		lastLogin         *time.Time
	)
	err := row.Scan(&id, &user.Phone, &user.FirstName, &user.LastName, &user.PasswordHash,
		&user.HasDonated, &user.DonationAmount, &donationDate, &donationExpiresAt,
		&lastLogin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	if donationDate != nil {
		user.DonationDate = donationDate.UTC()
	}
	if donationExpiresAt != nil {
		user.DonationExpiresAt = donationExpiresAt.UTC()
	}
	if lastLogin != nil {
		user.LastLogin = lastLogin.UTC()
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
