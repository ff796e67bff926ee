package gate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultPollInterval = time.Second
	defaultStatusEvery  = 30 * time.Second
	statusCheckTimeout  = 10 * time.Second
)

// StatusFunc fetches the live donor flag for the viewer. An error means the
// status is unresolved for this attempt, never "false".
type StatusFunc func(ctx context.Context) (bool, error)

// Supervisor drives one Gate: a poll ticker supplies elapsed-time samples when
// the event path is quiet, and a background checker resolves donor status.
// All of it stops when the context given to Run is cancelled.
type Supervisor struct {
	gate     *Gate
	statusMu sync.RWMutex
	status   StatusFunc
	logger   *slog.Logger

	pollInterval time.Duration
	statusEvery  time.Duration

	elapsedMs atomic.Int64
	lastEvent atomic.Int64 // unix nanos of the last event-driven sample
	seq       atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSupervisor wires a supervisor around the gate. status may be nil for
// anonymous sessions that have nothing to check yet.
func NewSupervisor(g *Gate, status StatusFunc, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		gate:         g,
		status:       status,
		logger:       logger,
		pollInterval: defaultPollInterval,
		statusEvery:  defaultStatusEvery,
	}
}

// Gate exposes the supervised gate.
func (s *Supervisor) Gate() *Gate { return s.gate }

// Run starts the ticker and the status checker. It returns immediately; the
// goroutines live until ctx is cancelled or Close is called.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// The event path is primary; the ticker only fills in when no
				// event arrived within the poll interval.
				last := time.Unix(0, s.lastEvent.Load())
				if time.Since(last) < s.pollInterval {
					continue
				}
				s.gate.Observe(time.Duration(s.elapsedMs.Load()) * time.Millisecond)
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.checkStatus(ctx)
		ticker := time.NewTicker(s.statusEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkStatus(ctx)
			}
		}
	}()
}

// ReportProgress feeds an event-driven elapsed sample (the player's native
// time update). It funnels into the same evaluation as the ticker.
func (s *Supervisor) ReportProgress(elapsed time.Duration) {
	if ms := elapsed.Milliseconds(); ms > s.elapsedMs.Load() {
		s.elapsedMs.Store(ms)
	}
	s.lastEvent.Store(time.Now().UnixNano())
	s.gate.Observe(elapsed)
}

// EnableStatusChecks installs the status source, typically after the viewer
// authenticates mid-session. The running checker picks it up on its next
// cycle; pair with CheckNow for an immediate resolution.
func (s *Supervisor) EnableStatusChecks(status StatusFunc) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}

// CheckNow performs one immediate status check.
func (s *Supervisor) CheckNow(ctx context.Context) {
	s.checkStatus(ctx)
}

func (s *Supervisor) checkStatus(ctx context.Context) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	defer cancel()

	seq := s.seq.Add(1)
	donated, err := status(ctx)
	if err != nil {
		// Unresolved this tick; the gate keeps its last value and the next
		// tick retries. Errors never become a deny.
		s.logger.Debug("donor status check failed", slog.Any("error", err))
		return
	}
	resolution := ResolutionConfirmedFalse
	if donated {
		resolution = ResolutionConfirmedTrue
	}
	s.gate.ResolveDonation(resolution, seq)
}

// Close tears the supervisor down: ticker and checker stop, the gate is
// closed, and no callbacks fire afterwards.
func (s *Supervisor) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.gate.Close()
	})
}
