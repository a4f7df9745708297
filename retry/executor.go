package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/aponysus/bulwark/circuit"
	"github.com/aponysus/bulwark/classify"
	"github.com/aponysus/bulwark/correlate"
	"github.com/aponysus/bulwark/internal"
	"github.com/aponysus/bulwark/profile"
)

// Operation is a unit of work that either completes or fails. It must be
// safely re-invocable: the executor may run it several times for one
// logical call.
type Operation func(ctx context.Context) error

// OperationValue is an Operation that produces a value.
type OperationValue[T any] func(ctx context.Context) (T, error)

// Classifier maps a raw failure to its classification.
type Classifier func(error) classify.ClassifiedError

// Executor drives the attempt loop for orchestrated calls. It consults the
// breaker registry before each call, classifies failures, computes
// inter-attempt delays, and reports terminal outcomes to the metrics and
// correlation collaborators.
type Executor struct {
	provider   profile.Provider
	breakers   *circuit.Registry
	classifier Classifier
	learner    Learner
	reporter   Reporter
	tracker    *correlate.Tracker
	logger     *zap.Logger
	clock      func() time.Time
	sleep      func(context.Context, time.Duration) error
	randFn     func() float64
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Provider   profile.Provider
	Breakers   *circuit.Registry
	Classifier Classifier
	Learner    Learner
	Reporter   Reporter
	Tracker    *correlate.Tracker
	Logger     *zap.Logger
	Clock      func() time.Time
	Sleep      func(context.Context, time.Duration) error
	Rand       func() float64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// WithProvider sets the profile provider.
func WithProvider(p profile.Provider) ExecutorOption {
	return func(o *ExecutorOptions) { o.Provider = p }
}

// WithBreakers sets the circuit breaker registry.
func WithBreakers(r *circuit.Registry) ExecutorOption {
	return func(o *ExecutorOptions) { o.Breakers = r }
}

// WithClassifier sets the failure classifier.
func WithClassifier(c Classifier) ExecutorOption {
	return func(o *ExecutorOptions) { o.Classifier = c }
}

// WithLearner sets the learning collaborator.
func WithLearner(l Learner) ExecutorOption {
	return func(o *ExecutorOptions) {
		if !internal.IsTypedNil(l) {
			o.Learner = l
		}
	}
}

// WithReporter sets the metrics reporter.
func WithReporter(r Reporter) ExecutorOption {
	return func(o *ExecutorOptions) {
		if !internal.IsTypedNil(r) {
			o.Reporter = r
		}
	}
}

// WithTracker sets the error correlation tracker.
func WithTracker(t *correlate.Tracker) ExecutorOption {
	return func(o *ExecutorOptions) { o.Tracker = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(o *ExecutorOptions) { o.Logger = l }
}

// WithClock sets the clock function.
func WithClock(f func() time.Time) ExecutorOption {
	return func(o *ExecutorOptions) { o.Clock = f }
}

// WithSleep overrides how the executor waits between attempts, primarily
// for tests. The function must honor ctx cancellation.
func WithSleep(f func(context.Context, time.Duration) error) ExecutorOption {
	return func(o *ExecutorOptions) { o.Sleep = f }
}

// NewExecutor creates an Executor with default collaborators for anything
// not configured: a static profile provider, a fresh breaker registry, the
// package classifier, and a nop logger.
func NewExecutor(opts ...ExecutorOption) *Executor {
	var cfg ExecutorOptions
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewExecutorFromOptions(cfg)
}

// NewExecutorFromOptions creates an Executor from a config struct.
func NewExecutorFromOptions(opts ExecutorOptions) *Executor {
	e := &Executor{
		provider:   opts.Provider,
		breakers:   opts.Breakers,
		classifier: opts.Classifier,
		learner:    opts.Learner,
		reporter:   opts.Reporter,
		tracker:    opts.Tracker,
		logger:     opts.Logger,
		clock:      opts.Clock,
		sleep:      opts.Sleep,
		randFn:     opts.Rand,
	}
	if e.provider == nil {
		e.provider = &profile.StaticProvider{}
	}
	if e.breakers == nil {
		e.breakers = circuit.NewRegistry(circuit.Config{})
	}
	if e.classifier == nil {
		e.classifier = classify.Classify
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepWithContext
	}
	if e.randFn == nil {
		e.randFn = rand.Float64
	}
	return e
}

// Breakers exposes the executor's breaker registry.
func (e *Executor) Breakers() *circuit.Registry { return e.breakers }

// Do executes op under the profile for name.
func (e *Executor) Do(ctx context.Context, name string, op Operation) error {
	_, err := DoValue(ctx, e, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoProfile executes op under an explicit profile, bypassing the provider.
func (e *Executor) DoProfile(ctx context.Context, name string, prof profile.Profile, op Operation) error {
	_, err := DoValueProfile(ctx, e, name, prof, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue executes op under the profile for name and returns its value.
func DoValue[T any](ctx context.Context, exec *Executor, name string, op OperationValue[T]) (T, error) {
	if exec == nil {
		exec = NewExecutor()
	}
	prof, err := exec.provider.Profile(ctx, name)
	if err != nil {
		// A broken provider degrades to stock behavior rather than failing
		// the call before the operation had a chance to run.
		exec.logger.Warn("profile provider failed, using defaults",
			zap.String("operation", name), zap.Error(err))
		prof = profile.Default()
	}
	return DoValueProfile(ctx, exec, name, prof, op)
}

// DoValueProfile executes op under an explicit profile.
func DoValueProfile[T any](ctx context.Context, exec *Executor, name string, prof profile.Profile, op OperationValue[T]) (T, error) {
	if exec == nil {
		exec = NewExecutor()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return doValue(ctx, exec, name, prof.Normalize(), op)
}

func doValue[T any](ctx context.Context, e *Executor, name string, prof profile.Profile, op OperationValue[T]) (T, error) {
	var zero T
	r := prof.Retry

	var br *circuit.Breaker
	if !r.DisableCircuitBreaker {
		br = e.breakers.GetOrCreate(name, circuit.Config{
			Threshold:         prof.Circuit.Threshold,
			OpenTimeout:       prof.Circuit.OpenTimeout.Std(),
			HalfOpenSuccesses: prof.Circuit.HalfOpenSuccesses,
		})
		if br.IsOpen() {
			cls := circuitOpenClassified(name, prof.Circuit.OpenTimeout.Std(), e.clock())
			e.attachCorrelation(ctx, &cls)
			e.safely("reporter", func() {
				if e.reporter != nil {
					e.reporter.RecordShortCircuit(name)
				}
			})
			e.track(ctx, cls)
			e.logger.Warn("short-circuited by open breaker", zap.String("operation", name))
			return zero, &CircuitOpenError{Operation: name, Classified: cls}
		}
	}

	start := e.clock()
	rc := &RetryContext{Operation: name}

	var lastErr error
	var lastCls classify.ClassifiedError

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptStart := e.clock()
		val, err := op(ctx)
		elapsed := e.clock().Sub(attemptStart)

		if err == nil {
			rc.Attempts = append(rc.Attempts, Attempt{
				Number:    attempt,
				StartedAt: attemptStart,
				Duration:  elapsed,
				Success:   true,
			})
			rc.TotalDuration = e.clock().Sub(start)
			if br != nil {
				br.RecordSuccess()
			}
			if attempt > 1 && !r.DisableLearning && e.learner != nil {
				e.safely("learner", func() {
					e.learner.RecordRetryPattern(Pattern{
						Operation:        name,
						Attempts:         attempt,
						AttemptDurations: rc.AttemptDurations(),
						ErrorProgression: rc.ErrorProgression(),
						TotalDuration:    rc.TotalDuration,
					})
				})
			}
			e.safely("reporter", func() {
				if e.reporter != nil {
					e.reporter.RecordSuccess(name, *rc)
				}
			})
			return val, nil
		}

		lastErr = err
		lastCls = e.classifier(err)
		rc.Attempts = append(rc.Attempts, Attempt{
			Number:    attempt,
			StartedAt: attemptStart,
			Duration:  elapsed,
			ErrorKind: lastCls.Kind,
		})
		if br != nil {
			br.RecordFailure()
		}

		if !lastCls.Retryable || attempt == r.MaxAttempts {
			break
		}

		delay := computeDelay(attempt, lastCls.Kind,
			r.BaseDelay.Std(), r.MaxDelay.Std(),
			e.learnedMultiplier(r, lastCls.Kind),
			e.jitterFactor(r),
			retryAfterHint(err))
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			rc.TotalDuration = e.clock().Sub(start)
			return zero, sleepErr
		}
	}

	rc.TotalDuration = e.clock().Sub(start)

	lastCls.Context.Operation = name
	if lastCls.Context.Timestamp.IsZero() {
		lastCls.Context.Timestamp = e.clock()
	}
	e.attachCorrelation(ctx, &lastCls)

	term := &TerminalError{
		Operation:    name,
		Classified:   lastCls,
		RetryContext: rc,
		Cause:        lastErr,
	}

	e.safely("reporter", func() {
		if e.reporter != nil {
			e.reporter.RecordFailure(name, *rc, lastCls)
		}
	})
	e.track(ctx, lastCls)

	e.logger.Warn("operation exhausted retries",
		zap.String("operation", name),
		zap.Int("attempts", len(rc.Attempts)),
		zap.Duration("total", rc.TotalDuration),
		zap.String("category", string(lastCls.Category)),
		zap.String("severity", lastCls.Severity.String()))

	return zero, term
}

func (e *Executor) learnedMultiplier(r profile.RetryProfile, kind classify.FailureKind) float64 {
	if r.DisableAdaptiveBackoff || e.learner == nil {
		return 1
	}
	m := 1.0
	e.safely("learner", func() {
		if v := e.learner.OptimalDelayMultiplier(kind); v > 0 {
			m = v
		}
	})
	return m
}

func (e *Executor) jitterFactor(r profile.RetryProfile) float64 {
	if r.DisableJitter {
		return 1
	}
	return jitterFloor + jitterSpan*e.randFn()
}

func (e *Executor) attachCorrelation(ctx context.Context, cls *classify.ClassifiedError) {
	cc, ok := correlate.FromContext(ctx)
	if !ok {
		return
	}
	cls.Context.CorrelationID = cc.CorrelationID
	if cls.Context.Service == "" {
		cls.Context.Service = cc.Service
	}
}

func (e *Executor) track(ctx context.Context, cls classify.ClassifiedError) {
	if e.tracker == nil {
		return
	}
	e.safely("tracker", func() { e.tracker.TrackError(ctx, cls) })
}

// safely isolates collaborator faults: a panicking learner, reporter, or
// tracker must never change the orchestrated call's outcome.
func (e *Executor) safely(component string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("collaborator panicked",
				zap.String("component", component),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
