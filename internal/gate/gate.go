package gate

import (
	"sync"
	"time"
)

// DonationResolution is the tri-state donor status the gate consumes. The
// distinction between Unknown and ConfirmedFalse is load bearing: an
// in-flight or failed status check must never be read as "not a donor", or a
// paying viewer gets blocked while their check is merely slow.
type DonationResolution int

const (
	ResolutionUnknown DonationResolution = iota
	ResolutionConfirmedFalse
	ResolutionConfirmedTrue
)

// State of the playback gate.
type State int

const (
	// StatePlaying: below the limit, or over it with entitlement (or with
	// donor status still unresolved).
	StatePlaying State = iota
	// StateAwaitingAuth: limit crossed by an anonymous viewer; playback
	// paused, authentication remediation surfaced.
	StateAwaitingAuth
	// StateAwaitingDonation: limit crossed by an authenticated non-donor;
	// playback paused, donation remediation surfaced.
	StateAwaitingDonation
	// StateBlocked: remediation dismissed without success. Playback stays
	// paused and nothing is re-surfaced automatically.
	StateBlocked
	// StateResumed: remediation succeeded; transitions to StatePlaying on the
	// next sample.
	StateResumed
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateAwaitingDonation:
		return "awaiting_donation"
	case StateBlocked:
		return "blocked"
	case StateResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// Remediation names the flow required to lift a block.
type Remediation int

const (
	RemediationNone Remediation = iota
	RemediationAuth
	RemediationDonation
)

func (r Remediation) String() string {
	switch r {
	case RemediationAuth:
		return "auth"
	case RemediationDonation:
		return "donation"
	default:
		return "none"
	}
}

// Player is the underlying video player the gate controls. Pausing an
// already-paused player must be harmless.
type Player interface {
	Pause()
	Play()
}

// Hooks receive gate side effects. OnBlocked fires at most once per limit
// crossing per remediation kind; re-entering the evaluation with the block
// already decided re-pauses the player but never re-surfaces a prompt.
type Hooks struct {
	OnBlocked func(Remediation)
	OnResumed func()
}

// Gate is the playback-limiting state machine. One instance per viewing
// session; it is not shared across sessions. All methods are safe for
// concurrent use since samples, status resolutions and remediation outcomes
// arrive from different goroutines.
type Gate struct {
	mu     sync.Mutex
	limit  time.Duration
	player Player
	hooks  Hooks

	state        State
	elapsed      time.Duration
	reachedLimit bool

	authenticated bool
	donation      DonationResolution
	donationSeq   uint64
	// donorLatched pins ResolutionConfirmedTrue for the rest of the session;
	// a stale confirmed-false arriving after it is discarded.
	donorLatched bool

	surfaced  map[Remediation]bool
	dismissed bool
	closed    bool
}

// New builds a gate for one viewing session.
func New(limit time.Duration, player Player, hooks Hooks) *Gate {
	return &Gate{
		limit:    limit,
		player:   player,
		hooks:    hooks,
		state:    StatePlaying,
		surfaced: make(map[Remediation]bool),
	}
}

// Observe feeds an elapsed-time sample. Both the event-driven path and the
// poll ticker funnel into this single evaluation. Elapsed time only moves
// forward; switching language or quality tracks must not reset it.
func (g *Gate) Observe(elapsed time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	if elapsed > g.elapsed {
		g.elapsed = elapsed
	}

	if g.state == StateResumed {
		g.state = StatePlaying
	}

	if !g.reachedLimit && g.elapsed >= g.limit {
		g.reachedLimit = true
	}

	if g.reachedLimit {
		g.evaluateLocked()
	}
}

// evaluateLocked applies the policy rules once the limit has been crossed.
func (g *Gate) evaluateLocked() {
	// Rule 5: a confirmed donor is never blocked, whatever the elapsed time.
	if g.donation == ResolutionConfirmedTrue {
		return
	}

	switch {
	case !g.authenticated:
		g.blockLocked(RemediationAuth)
	case g.donation == ResolutionConfirmedFalse:
		g.blockLocked(RemediationDonation)
	default:
		// Rule 4: status unresolved. Do not take a new block decision this
		// sample; re-evaluate on the next one. An already-decided block is
		// not lifted here either: unblocking requires meeting a criterion.
		if g.state == StateAwaitingAuth || g.state == StateAwaitingDonation || g.state == StateBlocked {
			g.player.Pause()
		}
	}
}

func (g *Gate) blockLocked(r Remediation) {
	// Continuous block: always pause. Re-pausing is harmless.
	g.player.Pause()

	if g.state == StateBlocked {
		// Prompt was dismissed; never re-open it automatically.
		return
	}

	target := StateAwaitingAuth
	if r == RemediationDonation {
		target = StateAwaitingDonation
	}
	if g.state == target {
		return
	}
	g.state = target

	if g.surfaced[r] || g.dismissed {
		return
	}
	g.surfaced[r] = true
	if g.hooks.OnBlocked != nil {
		g.hooks.OnBlocked(r)
	}
}

// SetAuthenticated updates the access tier of the viewer.
func (g *Gate) SetAuthenticated(authenticated bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.authenticated = authenticated
}

// ResolveDonation records the outcome of a donor status check. Resolutions
// carry a sequence number; out-of-order responses are discarded so a stale
// false can never overwrite a fresher true. Once confirmed true, the value is
// latched for the remainder of the session.
func (g *Gate) ResolveDonation(resolution DonationResolution, seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if seq <= g.donationSeq {
		return
	}
	g.donationSeq = seq
	if g.donorLatched {
		return
	}
	if resolution == ResolutionConfirmedTrue {
		g.donorLatched = true
	}
	g.donation = resolution
}

// AuthSucceeded reports that the viewer completed the authentication flow.
// Playback resumes; the limit is re-armed so the donation requirement is
// evaluated on the next crossing.
func (g *Gate) AuthSucceeded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.authenticated = true
	g.resumeLocked()
}

// DonationConfirmed reports that the viewer completed the donation flow.
func (g *Gate) DonationConfirmed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.authenticated = true
	g.donorLatched = true
	g.donation = ResolutionConfirmedTrue
	g.resumeLocked()
}

func (g *Gate) resumeLocked() {
	g.state = StateResumed
	g.reachedLimit = false
	g.dismissed = false
	g.surfaced = make(map[Remediation]bool)
	g.player.Play()
	if g.hooks.OnResumed != nil {
		g.hooks.OnResumed()
	}
}

// Dismiss reports that the viewer closed the remediation prompt without
// completing it. Playback stays paused; no prompt reopens automatically.
func (g *Gate) Dismiss() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if g.state == StateAwaitingAuth || g.state == StateAwaitingDonation {
		g.state = StateBlocked
		g.dismissed = true
		g.player.Pause()
	}
}

// Close ends the viewing session. No transitions or side effects happen after.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Blocked reports whether playback is currently withheld.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateAwaitingAuth, StateAwaitingDonation, StateBlocked:
		return true
	default:
		return false
	}
}

// Remediation returns the flow currently required to lift the block.
func (g *Gate) Remediation() Remediation {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateAwaitingAuth:
		return RemediationAuth
	case StateAwaitingDonation:
		return RemediationDonation
	case StateBlocked:
		if !g.authenticated {
			return RemediationAuth
		}
		return RemediationDonation
	default:
		return RemediationNone
	}
}

// Elapsed returns the furthest observed playback position.
func (g *Gate) Elapsed() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.elapsed
}
