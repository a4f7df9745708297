package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aponysus/bulwark/classify"
	"github.com/aponysus/bulwark/retry"
)

// DefaultHistoryLimit bounds the most-recent outcome history kept per
// operation.
const DefaultHistoryLimit = 50

// Outcome is one terminal call outcome in an operation's bounded history.
type Outcome struct {
	Timestamp time.Time
	Success   bool
	Attempts  int
	Duration  time.Duration
	Kind      classify.FailureKind
	Category  classify.Category
}

type operationStats struct {
	attempts      int
	successes     int
	failures      int
	shortCircuits int

	// attempts-to-resolution across successful calls
	resolutionAttempts int

	kindCounts     map[classify.FailureKind]int
	categoryCounts map[classify.Category]int

	history []Outcome
}

// Reporter rolls up per-operation outcomes. It is not safety-critical: the
// executor isolates it so a Reporter fault never affects a call's result.
type Reporter struct {
	mu  sync.Mutex
	ops map[string]*operationStats

	historyLimit int
	clock        func() time.Time
	logger       *zap.Logger

	prom *collectors
}

type collectors struct {
	attempts      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	shortCircuits *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithHistoryLimit bounds the per-operation outcome history.
func WithHistoryLimit(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithClock overrides the reporter clock, primarily for tests.
func WithClock(f func() time.Time) ReporterOption {
	return func(r *Reporter) {
		if f != nil {
			r.clock = f
		}
	}
}

// WithLogger sets the reporter's logger.
func WithLogger(l *zap.Logger) ReporterOption {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegisterer registers Prometheus collectors on reg. Without this
// option the reporter keeps only its in-process rollups.
func WithRegisterer(reg prometheus.Registerer) ReporterOption {
	return func(r *Reporter) {
		if reg == nil {
			return
		}
		c := &collectors{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bulwark",
				Name:      "attempts_total",
				Help:      "Attempts per operation, labelled by terminal outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bulwark",
				Name:      "failures_total",
				Help:      "Terminal failures per operation and category.",
			}, []string{"operation", "category"}),
			shortCircuits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bulwark",
				Name:      "short_circuits_total",
				Help:      "Calls rejected by an open circuit breaker.",
			}, []string{"operation"}),
			breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "bulwark",
				Name:      "breaker_state",
				Help:      "Breaker state per operation (0 closed, 1 open, 2 half-open).",
			}, []string{"operation"}),
		}
		reg.MustRegister(c.attempts, c.failures, c.shortCircuits, c.breakerState)
		r.prom = c
	}
}

// NewReporter creates a Reporter.
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		ops:          make(map[string]*operationStats),
		historyLimit: DefaultHistoryLimit,
		clock:        time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) statsLocked(operation string) *operationStats {
	st, ok := r.ops[operation]
	if !ok {
		st = &operationStats{
			kindCounts:     make(map[classify.FailureKind]int),
			categoryCounts: make(map[classify.Category]int),
		}
		r.ops[operation] = st
	}
	return st
}

// RecordSuccess implements retry.Reporter.
func (r *Reporter) RecordSuccess(operation string, rc retry.RetryContext) {
	now := r.clock()

	r.mu.Lock()
	st := r.statsLocked(operation)
	st.attempts += len(rc.Attempts)
	st.successes++
	st.resolutionAttempts += len(rc.Attempts)
	r.appendHistoryLocked(st, Outcome{
		Timestamp: now,
		Success:   true,
		Attempts:  len(rc.Attempts),
		Duration:  rc.TotalDuration,
	})
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.attempts.WithLabelValues(operation, "success").Add(float64(len(rc.Attempts)))
	}
}

// RecordFailure implements retry.Reporter.
func (r *Reporter) RecordFailure(operation string, rc retry.RetryContext, cls classify.ClassifiedError) {
	now := r.clock()

	r.mu.Lock()
	st := r.statsLocked(operation)
	st.attempts += len(rc.Attempts)
	st.failures++
	st.kindCounts[cls.Kind]++
	st.categoryCounts[cls.Category]++
	r.appendHistoryLocked(st, Outcome{
		Timestamp: now,
		Attempts:  len(rc.Attempts),
		Duration:  rc.TotalDuration,
		Kind:      cls.Kind,
		Category:  cls.Category,
	})
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.attempts.WithLabelValues(operation, "failure").Add(float64(len(rc.Attempts)))
		r.prom.failures.WithLabelValues(operation, string(cls.Category)).Inc()
	}
}

// RecordShortCircuit implements retry.Reporter.
func (r *Reporter) RecordShortCircuit(operation string) {
	now := r.clock()

	r.mu.Lock()
	st := r.statsLocked(operation)
	st.shortCircuits++
	st.failures++
	st.categoryCounts[classify.CategoryExternalService]++
	st.kindCounts[classify.KindServiceUnavailable]++
	r.appendHistoryLocked(st, Outcome{
		Timestamp: now,
		Kind:      classify.KindServiceUnavailable,
		Category:  classify.CategoryExternalService,
	})
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.shortCircuits.WithLabelValues(operation).Inc()
	}
}

func (r *Reporter) appendHistoryLocked(st *operationStats, o Outcome) {
	st.history = append(st.history, o)
	if len(st.history) > r.historyLimit {
		st.history = st.history[len(st.history)-r.historyLimit:]
	}
}
