package circuit

import (
	"sync"
	"time"
)

// Registry owns one breaker per operation name, created lazily on first use.
// Callers operate only through the registry; the registry lock guards the
// map while each breaker guards its own record, so distinct operations never
// contend with each other.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	nowFn    func() time.Time
}

// NewRegistry creates a registry whose breakers use defaults (zero fields
// take package defaults).
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults.withDefaults(),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(r.defaults)
	if r.nowFn != nil {
		b.nowFn = r.nowFn
	}
	r.breakers[name] = b
	return b
}

// GetOrCreate returns the breaker for name, creating it with cfg on first
// use. A zero cfg falls back to the registry defaults. Existing breakers are
// left untouched.
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	if cfg == (Config{}) {
		cfg = r.defaults
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(cfg)
	if r.nowFn != nil {
		b.nowFn = r.nowFn
	}
	r.breakers[name] = b
	return b
}

// Configure installs a breaker for name with cfg, replacing any existing one.
func (r *Registry) Configure(name string, cfg Config) *Breaker {
	b := NewBreaker(cfg)
	r.mu.Lock()
	if r.nowFn != nil {
		b.nowFn = r.nowFn
	}
	r.breakers[name] = b
	r.mu.Unlock()
	return b
}

// IsOpen reports whether calls for name should be short-circuited.
func (r *Registry) IsOpen(name string) bool { return r.Get(name).IsOpen() }

// RecordSuccess notes a successful call for name.
func (r *Registry) RecordSuccess(name string) { r.Get(name).RecordSuccess() }

// RecordFailure notes a failed call for name.
func (r *Registry) RecordFailure(name string) { r.Get(name).RecordFailure() }

// Reset returns the breaker for name to a fresh CLOSED state.
func (r *Registry) Reset(name string) {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// ResetAll resets every known breaker.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	all := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.RUnlock()

	for _, b := range all {
		b.Reset()
	}
}

// States returns the current state per operation name.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	names := make(map[string]*Breaker, len(r.breakers))
	for name, b := range r.breakers {
		names[name] = b
	}
	r.mu.RUnlock()

	out := make(map[string]State, len(names))
	for name, b := range names {
		out[name] = b.State()
	}
	return out
}

// SetClock overrides the clock for the registry and every breaker it has
// created or will create, primarily for tests.
func (r *Registry) SetClock(f func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFn = f
	for _, b := range r.breakers {
		b.SetClock(f)
	}
}
