package profile

import (
	"time"
)

// Profile is the effective per-operation configuration: the retry knobs plus
// the breaker knobs for that operation name.
//
// Boolean features default to enabled; the zero value of each Disable field
// keeps the feature on, which is also what an absent YAML key means.
type Profile struct {
	Retry   RetryProfile   `yaml:"retry"`
	Circuit CircuitProfile `yaml:"circuit"`
}

// RetryProfile holds the attempt-loop knobs.
type RetryProfile struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`

	DisableLearning        bool `yaml:"disable_learning"`
	DisableCircuitBreaker  bool `yaml:"disable_circuit_breaker"`
	DisableAdaptiveBackoff bool `yaml:"disable_adaptive_backoff"`
	DisableJitter          bool `yaml:"disable_jitter"`
}

// CircuitProfile holds the breaker knobs for the operation.
type CircuitProfile struct {
	Threshold         int      `yaml:"threshold"`
	OpenTimeout       Duration `yaml:"open_timeout"`
	HalfOpenSuccesses int      `yaml:"half_open_successes"`
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second

	maxAttemptsCeiling = 10
	baseDelayFloor     = 1 * time.Millisecond
	maxDelayCeiling    = 5 * time.Minute
)

// Default returns the stock profile used when no provider entry matches.
func Default() Profile {
	return Profile{
		Retry: RetryProfile{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   Duration(DefaultBaseDelay),
			MaxDelay:    Duration(DefaultMaxDelay),
		},
	}
}

// Normalize clamps p into its valid range, filling zero fields with
// defaults. It never fails; out-of-range values are pulled to the nearest
// bound, matching how misconfigured profiles should degrade in production.
func (p Profile) Normalize() Profile {
	n := p

	if n.Retry.MaxAttempts == 0 {
		n.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if n.Retry.MaxAttempts < 1 {
		n.Retry.MaxAttempts = 1
	} else if n.Retry.MaxAttempts > maxAttemptsCeiling {
		n.Retry.MaxAttempts = maxAttemptsCeiling
	}

	if n.Retry.BaseDelay <= 0 {
		n.Retry.BaseDelay = Duration(DefaultBaseDelay)
	}
	if n.Retry.BaseDelay < Duration(baseDelayFloor) {
		n.Retry.BaseDelay = Duration(baseDelayFloor)
	}

	if n.Retry.MaxDelay <= 0 {
		n.Retry.MaxDelay = Duration(DefaultMaxDelay)
	}
	if n.Retry.MaxDelay > Duration(maxDelayCeiling) {
		n.Retry.MaxDelay = Duration(maxDelayCeiling)
	}
	if n.Retry.MaxDelay < n.Retry.BaseDelay {
		n.Retry.MaxDelay = n.Retry.BaseDelay
	}

	if n.Circuit.Threshold < 0 {
		n.Circuit.Threshold = 0
	}
	if n.Circuit.OpenTimeout < 0 {
		n.Circuit.OpenTimeout = 0
	}
	if n.Circuit.HalfOpenSuccesses < 0 {
		n.Circuit.HalfOpenSuccesses = 0
	}

	return n
}
