package retry

import (
	"time"

	"github.com/aponysus/bulwark/classify"
)

// Attempt is the record of a single attempt within one orchestrated call.
type Attempt struct {
	Number    int
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	ErrorKind classify.FailureKind // set when the attempt failed
}

// RetryContext aggregates the attempts of one orchestrated call. It is
// attached to the terminal error for downstream diagnostics.
type RetryContext struct {
	Operation     string
	Attempts      []Attempt
	TotalDuration time.Duration
}

// ErrorProgression returns the ordered error kinds across failed attempts.
func (rc *RetryContext) ErrorProgression() []classify.FailureKind {
	if rc == nil {
		return nil
	}
	out := make([]classify.FailureKind, 0, len(rc.Attempts))
	for _, a := range rc.Attempts {
		if !a.Success {
			out = append(out, a.ErrorKind)
		}
	}
	return out
}

// AttemptDurations returns the per-attempt durations in order.
func (rc *RetryContext) AttemptDurations() []time.Duration {
	if rc == nil {
		return nil
	}
	out := make([]time.Duration, len(rc.Attempts))
	for i, a := range rc.Attempts {
		out[i] = a.Duration
	}
	return out
}

// Pattern is the shape of a successful retry reported to the learning
// collaborator: which operation recovered, after how many attempts, and
// what the failures along the way looked like.
type Pattern struct {
	Operation        string
	Attempts         int
	AttemptDurations []time.Duration
	ErrorProgression []classify.FailureKind
	TotalDuration    time.Duration
}

// Learner is the external learning collaborator. OptimalDelayMultiplier
// returns a learned backoff factor for an error kind (values <= 0 are
// treated as 1); RecordRetryPattern feeds it successful retry outcomes.
type Learner interface {
	OptimalDelayMultiplier(kind classify.FailureKind) float64
	RecordRetryPattern(p Pattern)
}

// Reporter receives terminal outcomes for metrics rollup. Implementations
// must tolerate concurrent calls; failures in a Reporter never affect the
// orchestrated call's outcome.
type Reporter interface {
	RecordSuccess(operation string, rc RetryContext)
	RecordFailure(operation string, rc RetryContext, cls classify.ClassifiedError)
	RecordShortCircuit(operation string)
}
