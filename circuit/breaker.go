package circuit

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Normal operation, calls proceed.
	StateOpen                  // Calls fast-failed without touching the upstream.
	StateHalfOpen              // Probing mode after the open timeout elapsed.
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the knobs for one breaker.
type Config struct {
	Threshold         int           // failures to open; default 5
	OpenTimeout       time.Duration // time in OPEN before probing; default 60s
	HalfOpenSuccesses int           // consecutive probe successes to close; default 2
}

const (
	DefaultThreshold         = 5
	DefaultOpenTimeout       = 60 * time.Second
	DefaultHalfOpenSuccesses = 2
)

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}

// Snapshot is a point-in-time copy of a breaker's observable state.
type Snapshot struct {
	State             State
	Failures          int
	HalfOpenSuccesses int
	LastFailureAt     time.Time
}

// Breaker is the per-operation-name state machine.
//
// CLOSED decays the failure count on success rather than clearing it, so a
// single success does not erase a pattern of failures. The OPEN to HALF_OPEN
// transition is lazy: it happens on the next access after the open timeout,
// never on a background timer, so a breaker that is never touched again
// never heals on its own.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state             State
	failures          int
	halfOpenSuccesses int
	lastFailureAt     time.Time

	nowFn func() time.Time
}

// NewBreaker creates a CLOSED breaker with cfg (zero fields take defaults).
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// IsOpen reports whether calls should be short-circuited. As a side effect
// it performs the lazy OPEN to HALF_OPEN transition once the open timeout
// has elapsed.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updateStateLocked() == StateOpen
}

// State returns the current state, applying the lazy transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updateStateLocked()
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.updateStateLocked() {
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccesses {
			b.state = StateClosed
			b.failures = 0
			b.halfOpenSuccesses = 0
		}
	}
	// A success while OPEN means the caller bypassed the breaker; ignored.
}

// RecordFailure notes a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.updateStateLocked() {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.state = StateOpen
			b.lastFailureAt = b.now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.halfOpenSuccesses = 0
		b.lastFailureAt = b.now()
	}
}

// Reset returns the breaker to a fresh CLOSED state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenSuccesses = 0
	b.lastFailureAt = time.Time{}
}

// Snapshot copies the observable state, applying the lazy transition first.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:             b.updateStateLocked(),
		Failures:          b.failures,
		HalfOpenSuccesses: b.halfOpenSuccesses,
		LastFailureAt:     b.lastFailureAt,
	}
}

func (b *Breaker) updateStateLocked() State {
	if b.state == StateOpen && b.now().Sub(b.lastFailureAt) > b.cfg.OpenTimeout {
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
	}
	return b.state
}

func (b *Breaker) now() time.Time {
	if b.nowFn != nil {
		return b.nowFn()
	}
	return time.Now()
}

// SetClock overrides the breaker clock, primarily for tests.
func (b *Breaker) SetClock(f func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFn = f
}
