// Package recovery turns a classified failure's recovery strategy into a
// concrete action: re-running the operation under a strategy-specific retry
// profile, optionally after a health check of the upstream, or refusing to
// retry at all for failures only the caller can fix.
package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/bulwark/circuit"
	"github.com/aponysus/bulwark/classify"
	"github.com/aponysus/bulwark/profile"
	"github.com/aponysus/bulwark/retry"
)

// Health is the health-monitor collaborator's verdict.
type Health struct {
	Healthy bool
	Detail  string
}

// HealthMonitor is the external health-check/recovery collaborator used by
// the health-check-then-retry strategy.
type HealthMonitor interface {
	CheckServiceHealth(ctx context.Context) (Health, error)
	RecoverService(ctx context.Context) error
}

// Executor maps recovery strategies to retry profiles and drives the
// orchestrator accordingly.
type Executor struct {
	retrier  *retry.Executor
	breakers *circuit.Registry
	monitor  HealthMonitor
	logger   *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMonitor sets the health-monitor collaborator.
func WithMonitor(m HealthMonitor) Option {
	return func(e *Executor) { e.monitor = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates a recovery Executor driving retrier. The breaker
// registry is taken from the retrier so a recovery-triggered reset acts on
// the same breakers the orchestrator consults.
func NewExecutor(retrier *retry.Executor, opts ...Option) *Executor {
	if retrier == nil {
		retrier = retry.NewExecutor()
	}
	e := &Executor{
		retrier:  retrier,
		breakers: retrier.Breakers(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy-specific retry profiles. Delays are deliberately distinct from
// the stock profile: backoff-family strategies wait longer up front, the
// network profile stays close to stock, and the fallback profile gives one
// cheap second chance.
func profileFor(strategy classify.Strategy) (profile.Profile, bool) {
	switch strategy {
	case classify.StrategyBackoffJitter:
		return profile.Profile{Retry: profile.RetryProfile{
			MaxAttempts: 4,
			BaseDelay:   profile.Duration(2 * time.Second),
			MaxDelay:    profile.Duration(60 * time.Second),
		}}, true
	case classify.StrategyLongerTimeout:
		return profile.Profile{Retry: profile.RetryProfile{
			MaxAttempts: 2,
			BaseDelay:   profile.Duration(5 * time.Second),
			MaxDelay:    profile.Duration(30 * time.Second),
		}}, true
	case classify.StrategyNetworkRetry:
		return profile.Profile{Retry: profile.RetryProfile{
			MaxAttempts: 3,
			BaseDelay:   profile.Duration(1 * time.Second),
			MaxDelay:    profile.Duration(30 * time.Second),
		}}, true
	case classify.StrategyLogFallback:
		return profile.Profile{Retry: profile.RetryProfile{
			MaxAttempts: 2,
			BaseDelay:   profile.Duration(1 * time.Second),
			MaxDelay:    profile.Duration(10 * time.Second),
			// The fallback path is a last resort; adaptive state from past
			// behavior is not meaningful here.
			DisableAdaptiveBackoff: true,
		}}, true
	case classify.StrategyHealthCheckRetry:
		return profile.Profile{Retry: profile.RetryProfile{
			MaxAttempts: 2,
			BaseDelay:   profile.Duration(3 * time.Second),
			MaxDelay:    profile.Duration(60 * time.Second),
		}}, true
	}
	return profile.Profile{}, false
}

// Execute acts on cls's recovery strategy for the named operation.
//
// Retryable strategies re-run op through the orchestrator under a
// strategy-specific profile; health-check-then-retry consults the health
// monitor first and resets all breakers after a successful recovery. The
// caller-side strategies (content modification, reconfiguration, input
// validation) return cls unchanged: only a changed input or configuration
// can resolve those.
func (e *Executor) Execute(ctx context.Context, cls classify.ClassifiedError, name string, op retry.Operation) error {
	switch cls.Strategy {
	case classify.StrategyContentModification,
		classify.StrategyReconfiguration,
		classify.StrategyInputValidation:
		return &cls
	}

	if cls.Strategy == classify.StrategyHealthCheckRetry {
		if err := e.ensureHealthy(ctx); err != nil {
			e.logger.Warn("upstream recovery failed",
				zap.String("operation", name), zap.Error(err))
			return &cls
		}
	}

	prof, ok := profileFor(cls.Strategy)
	if !ok {
		return &cls
	}
	return e.retrier.DoProfile(ctx, name, prof, op)
}

func (e *Executor) ensureHealthy(ctx context.Context) error {
	if e.monitor == nil {
		return nil
	}
	h, err := e.monitor.CheckServiceHealth(ctx)
	if err != nil {
		return err
	}
	if h.Healthy {
		return nil
	}

	e.logger.Info("upstream unhealthy, attempting recovery", zap.String("detail", h.Detail))
	if err := e.monitor.RecoverService(ctx); err != nil {
		return err
	}
	e.breakers.ResetAll()
	return nil
}
