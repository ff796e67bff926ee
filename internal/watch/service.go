package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
	"github.com/frantchessico/prato-frio-filme/internal/donation"
	"github.com/frantchessico/prato-frio-filme/internal/gate"
)

const (
	// sessionIdleTTL expires viewing sessions whose client went away without
	// tearing down.
	sessionIdleTTL = 10 * time.Minute
	sweepEvery     = time.Minute
)

// ErrSessionNotFound indicates an unknown or expired viewing session.
var ErrSessionNotFound = errors.New("viewing session not found")

// remotePlayer stands in for the client's video player. The gate drives it;
// the client learns the directive from the paused flag on each response.
type remotePlayer struct {
	paused atomic.Bool
}

func (p *remotePlayer) Pause() { p.paused.Store(true) }
func (p *remotePlayer) Play()  { p.paused.Store(false) }

type viewingSession struct {
	id         string
	userID     string
	player     *remotePlayer
	supervisor *gate.Supervisor
	lastSeen   atomic.Int64 // unix nanos
}

func (s *viewingSession) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// Snapshot is the gate view returned to the client after each report.
type Snapshot struct {
	State       string `json:"state"`
	Blocked     bool   `json:"blocked"`
	Paused      bool   `json:"paused"`
	Remediation string `json:"remediation"`
	ElapsedSec  int64  `json:"elapsedSeconds"`
}

// Service owns every live viewing session. Each session holds its own gate
// and supervisor; nothing is shared between sessions, and teardown is
// explicit (or by idle expiry).
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*viewingSession

	donations *donation.Service
	events    *analytics.Service
	logger    *slog.Logger
	limit     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService builds the viewing-session host. The provided limit applies to
// every session started afterwards.
func NewService(donations *donation.Service, events *analytics.Service, logger *slog.Logger, limit time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		sessions:  make(map[string]*viewingSession),
		donations: donations,
		events:    events,
		logger:    logger,
		limit:     limit,
		ctx:       ctx,
		cancel:    cancel,
	}
	go s.sweep(ctx)
	return s
}

// StartInput captures who is opening the session.
type StartInput struct {
	UserID    string // empty for anonymous viewers
	IP        string
	UserAgent string
}

// StartResult identifies the new session and its preview limit.
type StartResult struct {
	SessionID    string `json:"sessionId"`
	LimitSeconds int64  `json:"limitSeconds"`
}

// Start opens a viewing session and begins supervising it.
func (s *Service) Start(ctx context.Context, input StartInput) (StartResult, error) {
	player := &remotePlayer{}
	sessionID := uuid.New().String()

	g := gate.New(s.limit, player, gate.Hooks{
		OnBlocked: func(r gate.Remediation) {
			_ = s.events.Record(s.ctx, analytics.Event{
				UserID:   input.UserID,
				Name:     "playback_blocked",
				Category: analytics.CategoryVideo,
				Data:     map[string]any{"sessionId": sessionID, "remediation": r.String()},
				IP:       input.IP,
			})
		},
		OnResumed: func() {
			_ = s.events.Record(s.ctx, analytics.Event{
				UserID:   input.UserID,
				Name:     "playback_resumed",
				Category: analytics.CategoryVideo,
				Data:     map[string]any{"sessionId": sessionID},
				IP:       input.IP,
			})
		},
	})

	var status gate.StatusFunc
	if input.UserID != "" {
		g.SetAuthenticated(true)
		status = s.statusFunc(input.UserID)
	}

	sup := gate.NewSupervisor(g, status, s.logger)
	sess := &viewingSession{
		id:         sessionID,
		userID:     input.UserID,
		player:     player,
		supervisor: sup,
	}
	sess.touch()

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	sup.Run(s.ctx)
	if status != nil {
		sup.CheckNow(ctx)
	}

	_ = s.events.Record(ctx, analytics.Event{
		UserID:    input.UserID,
		Name:      "watch_session_started",
		Category:  analytics.CategoryVideo,
		Data:      map[string]any{"sessionId": sessionID},
		IP:        input.IP,
		UserAgent: input.UserAgent,
	})

	return StartResult{SessionID: sessionID, LimitSeconds: int64(s.limit.Seconds())}, nil
}

// Progress feeds an elapsed-time report from the client player.
func (s *Service) Progress(sessionID string, elapsed time.Duration) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.touch()
	sess.supervisor.ReportProgress(elapsed)
	return s.snapshot(sess), nil
}

// RemediationOutcome names how the viewer left the remediation flow.
type RemediationOutcome string

const (
	OutcomeAuth      RemediationOutcome = "auth"
	OutcomeDonation  RemediationOutcome = "donation"
	OutcomeDismissed RemediationOutcome = "dismissed"
)

// ErrInvalidOutcome rejects unrecognised remediation outcomes.
var ErrInvalidOutcome = errors.New("invalid remediation outcome")

// Remediation applies the outcome of an authentication or donation flow to
// the session's gate. For auth and donation outcomes userID identifies the
// now-authenticated viewer.
func (s *Service) Remediation(ctx context.Context, sessionID string, outcome RemediationOutcome, userID string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.touch()

	switch outcome {
	case OutcomeAuth:
		sess.userID = userID
		sess.supervisor.EnableStatusChecks(s.statusFunc(userID))
		sess.supervisor.Gate().AuthSucceeded()
		sess.supervisor.CheckNow(ctx)
	case OutcomeDonation:
		sess.userID = userID
		sess.supervisor.EnableStatusChecks(s.statusFunc(userID))
		sess.supervisor.Gate().DonationConfirmed()
	case OutcomeDismissed:
		sess.supervisor.Gate().Dismiss()
	default:
		return Snapshot{}, ErrInvalidOutcome
	}
	return s.snapshot(sess), nil
}

// SwitchTrack records a language or quality change. Elapsed time and any
// block decision deliberately survive the switch.
func (s *Service) SwitchTrack(sessionID, language, quality string) (Snapshot, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.touch()
	_ = s.events.Record(s.ctx, analytics.Event{
		UserID:   sess.userID,
		Name:     "track_switched",
		Category: analytics.CategoryVideo,
		Data:     map[string]any{"sessionId": sessionID, "language": language, "quality": quality},
	})
	return s.snapshot(sess), nil
}

// End tears the session down.
func (s *Service) End(sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.supervisor.Close()
	return nil
}

// Shutdown closes every session and stops the sweeper.
func (s *Service) Shutdown() {
	s.cancel()
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*viewingSession)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.supervisor.Close()
	}
}

func (s *Service) get(sessionID string) (*viewingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) snapshot(sess *viewingSession) Snapshot {
	g := sess.supervisor.Gate()
	return Snapshot{
		State:       g.State().String(),
		Blocked:     g.Blocked(),
		Paused:      sess.player.paused.Load(),
		Remediation: g.Remediation().String(),
		ElapsedSec:  int64(g.Elapsed().Seconds()),
	}
}

func (s *Service) statusFunc(userID string) gate.StatusFunc {
	return func(ctx context.Context) (bool, error) {
		status, err := s.donations.StatusFor(ctx, userID)
		if err != nil {
			return false, err
		}
		return status.HasDonated, nil
	}
}

func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-sessionIdleTTL).UnixNano()
			s.mu.Lock()
			var expired []*viewingSession
			for id, sess := range s.sessions {
				if sess.lastSeen.Load() < cutoff {
					expired = append(expired, sess)
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
			for _, sess := range expired {
				sess.supervisor.Close()
				s.logger.Info("viewing session expired", slog.String("session_id", sess.id))
			}
		}
	}
}
