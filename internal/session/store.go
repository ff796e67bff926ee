package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound indicates no active session matches the token.
var ErrSessionNotFound = errors.New("session not found")

// Session records an issued bearer token and its device context. Expiry is
// enforced twice: by the store TTL and by the token's own expiry claim.
type Session struct {
	ID           string
	UserID       string
	Token        string
	IP           string
	UserAgent    string
	Active       bool
	ExpiresAt    time.Time
	LastActivity time.Time
	CreatedAt    time.Time
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s Session) error
	FindByToken(ctx context.Context, token string) (Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Deactivate(ctx context.Context, token string) error
	CountActive(ctx context.Context, since time.Time) (int64, error)
}

const activeKeyPrefix = "session:active:"

// RedisPostgresStore keeps the durable session row in Postgres and mirrors the
// active flag into Redis under a TTL so expiry needs no sweeper.
type RedisPostgresStore struct {
	db    *pgxpool.Pool
	cache *redis.Client
}

// NewRedisPostgresStore builds the production session store.
func NewRedisPostgresStore(db *pgxpool.Pool, cache *redis.Client) *RedisPostgresStore {
	return &RedisPostgresStore{db: db, cache: cache}
}

func (s *RedisPostgresStore) Create(ctx context.Context, sess Session) error {
	id, err := uuid.Parse(sess.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(sess.UserID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO sessions (id, user_id, token, ip, user_agent, active, expires_at, last_activity, created_at)
        VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8)`,
		id, userID, sess.Token, sess.IP, sess.UserAgent, sess.ExpiresAt.UTC(), sess.LastActivity.UTC(), sess.CreatedAt.UTC())
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl > 0 && s.cache != nil {
		// Best effort mirror; Postgres remains the source of truth.
		_ = s.cache.Set(ctx, activeKeyPrefix+sess.Token, sess.UserID, ttl).Err()
	}
	return nil
}

func (s *RedisPostgresStore) FindByToken(ctx context.Context, token string) (Session, error) {
	row := s.db.QueryRow(ctx, `SELECT id, user_id, token, ip, user_agent, active, expires_at, last_activity, created_at
        FROM sessions WHERE token = $1`, token)
	var (
		id     uuid.UUID
		userID uuid.UUID
		sess   Session
	)
	err := row.Scan(&id, &userID, &sess.Token, &sess.IP, &sess.UserAgent, &sess.Active,
		&sess.ExpiresAt, &sess.LastActivity, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	sess.ID = id.String()
	sess.UserID = userID.String()
	if !sess.Active || time.Now().After(sess.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *RedisPostgresStore) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE sessions SET last_activity = $1 WHERE token = $2 AND active`, at.UTC(), token)
	return err
}

func (s *RedisPostgresStore) Deactivate(ctx context.Context, token string) error {
	cmd, err := s.db.Exec(ctx, `UPDATE sessions SET active = FALSE WHERE token = $1 AND active`, token)
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, activeKeyPrefix+token).Err()
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisPostgresStore) CountActive(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM sessions
        WHERE active AND expires_at > now() AND last_activity >= $1`, since.UTC()).Scan(&count)
	return count, err
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session // keyed by token
}

// NewMemoryStore builds an in-memory session store for testing.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]Session)}
}

func (m *memoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return nil
}

func (m *memoryStore) FindByToken(_ context.Context, token string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || !s.Active || time.Now().After(s.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *memoryStore) Touch(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		s.LastActivity = at
		m.sessions[token] = s
	}
	return nil
}

func (m *memoryStore) Deactivate(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || !s.Active {
		return ErrSessionNotFound
	}
	s.Active = false
	m.sessions[token] = s
	return nil
}

func (m *memoryStore) CountActive(_ context.Context, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	now := time.Now()
	for _, s := range m.sessions {
		if s.Active && s.ExpiresAt.After(now) && !s.LastActivity.Before(since) {
			count++
		}
	}
	return count, nil
}
