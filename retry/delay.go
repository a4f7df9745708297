package retry

import (
	"errors"
	"math"
	"time"

	"github.com/aponysus/bulwark/classify"
)

// Per-error-kind delay adjustments. Rate limits back off hard, timeouts and
// unavailable upstreams back off moderately, and validation failures get no
// extra delay because waiting will not change the verdict.
const (
	adjustRateLimit   = 3.0
	adjustTimeout     = 1.8
	adjustUnavailable = 2.2
)

const (
	jitterFloor = 0.8
	jitterSpan  = 0.4
)

// computeDelay derives the inter-attempt delay after attempt number
// `attempt` failed with kind. jitter and learned are multiplicative factors
// (1 when their feature is off). override, when positive, wins outright
// (an upstream Retry-After hint); everything is clamped to max and rounded
// to the nearest millisecond.
func computeDelay(attempt int, kind classify.FailureKind, base, max time.Duration, learned, jitter float64, override time.Duration) time.Duration {
	if override > 0 {
		if max > 0 && override > max {
			return max
		}
		return override
	}

	mult := math.Pow(2, float64(attempt-1))
	switch kind {
	case classify.KindRateLimit:
		mult *= adjustRateLimit
	case classify.KindTimeout:
		mult *= adjustTimeout
	case classify.KindValidation:
		mult = 1
	case classify.KindServiceUnavailable:
		mult *= adjustUnavailable
	}

	if learned > 0 {
		mult *= learned
	}

	d := float64(base) * mult
	if jitter > 0 {
		d *= jitter
	}
	if max > 0 && d > float64(max) {
		d = float64(max)
	}

	ms := math.Round(d / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// retryAfterHint extracts an upstream Retry-After hint from err, if any.
func retryAfterHint(err error) time.Duration {
	var rl *classify.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return 0
}
