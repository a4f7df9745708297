// Package bulwark is the assembled resilience core: a retry orchestrator
// wired to a circuit breaker registry, failure classifier, error correlation
// tracker, and metrics reporter.
package bulwark

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aponysus/bulwark/circuit"
	"github.com/aponysus/bulwark/correlate"
	"github.com/aponysus/bulwark/metrics"
	"github.com/aponysus/bulwark/profile"
	"github.com/aponysus/bulwark/recovery"
	"github.com/aponysus/bulwark/retry"
)

// Core bundles the resilience subsystems around one executor.
type Core struct {
	Executor *retry.Executor
	Breakers *circuit.Registry
	Tracker  *correlate.Tracker
	Reporter *metrics.Reporter
	Recovery *recovery.Executor

	logger *zap.Logger
}

type config struct {
	logger     *zap.Logger
	provider   profile.Provider
	learner    retry.Learner
	monitor    recovery.HealthMonitor
	registerer prometheus.Registerer
	trackOpts  []correlate.TrackerOption
}

// Option configures a Core.
type Option func(*config)

// WithLogger sets the logger shared across the subsystems.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithProfiles sets the per-operation profile provider.
func WithProfiles(p profile.Provider) Option {
	return func(c *config) { c.provider = p }
}

// WithLearner sets the learning collaborator.
func WithLearner(l retry.Learner) Option {
	return func(c *config) { c.learner = l }
}

// WithHealthMonitor sets the health-monitor collaborator.
func WithHealthMonitor(m recovery.HealthMonitor) Option {
	return func(c *config) { c.monitor = m }
}

// WithPrometheus registers the metrics collectors on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithTrackerOptions forwards options to the correlation tracker.
func WithTrackerOptions(opts ...correlate.TrackerOption) Option {
	return func(c *config) { c.trackOpts = append(c.trackOpts, opts...) }
}

// New assembles a Core. Close releases its background resources.
func New(opts ...Option) *Core {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	breakers := circuit.NewRegistry(circuit.Config{})

	reporterOpts := []metrics.ReporterOption{metrics.WithLogger(cfg.logger)}
	if cfg.registerer != nil {
		reporterOpts = append(reporterOpts, metrics.WithRegisterer(cfg.registerer))
	}
	reporter := metrics.NewReporter(reporterOpts...)

	trackOpts := append([]correlate.TrackerOption{correlate.WithLogger(cfg.logger)}, cfg.trackOpts...)
	tracker := correlate.NewTracker(trackOpts...)

	exec := retry.NewExecutorFromOptions(retry.ExecutorOptions{
		Provider: cfg.provider,
		Breakers: breakers,
		Learner:  cfg.learner,
		Reporter: reporter,
		Tracker:  tracker,
		Logger:   cfg.logger,
	})

	rec := recovery.NewExecutor(exec,
		recovery.WithMonitor(cfg.monitor),
		recovery.WithLogger(cfg.logger))

	return &Core{
		Executor: exec,
		Breakers: breakers,
		Tracker:  tracker,
		Reporter: reporter,
		Recovery: rec,
		logger:   cfg.logger,
	}
}

// Close stops the correlation tracker's background sweep.
func (c *Core) Close() {
	c.Tracker.Close()
}

// Do executes op under the profile for name.
func (c *Core) Do(ctx context.Context, name string, op retry.Operation) error {
	return c.Executor.Do(ctx, name, op)
}

// DoValue executes op under the profile for name and returns its value.
func DoValue[T any](ctx context.Context, c *Core, name string, op retry.OperationValue[T]) (T, error) {
	return retry.DoValue(ctx, c.Executor, name, op)
}

// Health returns the system-wide health view.
func (c *Core) Health() metrics.ServiceHealth {
	return c.Reporter.Health(c.Breakers.States())
}

// Report renders the diagnostic summary.
func (c *Core) Report() string {
	return c.Reporter.RenderReport(c.Breakers.States(), time.Now())
}
