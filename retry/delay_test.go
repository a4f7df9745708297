package retry

import (
	"fmt"
	"testing"
	"time"

	"github.com/aponysus/bulwark/classify"
)

const (
	testBase = 1 * time.Second
	testMax  = 30 * time.Second
)

func TestComputeDelay_KindAdjustments(t *testing.T) {
	cases := []struct {
		kind    classify.FailureKind
		attempt int
		want    time.Duration
	}{
		// base * 2^(attempt-1) * kind factor, no jitter, no learning.
		{classify.KindRateLimit, 1, 3 * time.Second},
		{classify.KindRateLimit, 2, 6 * time.Second},
		{classify.KindRateLimit, 3, 12 * time.Second},
		{classify.KindTimeout, 1, 1800 * time.Millisecond},
		{classify.KindTimeout, 2, 3600 * time.Millisecond},
		{classify.KindServiceUnavailable, 1, 2200 * time.Millisecond},
		{classify.KindNetwork, 1, 1 * time.Second},
		{classify.KindNetwork, 3, 4 * time.Second},
		{classify.KindUnknown, 2, 2 * time.Second},
		// Validation forces the multiplier to 1 regardless of attempt.
		{classify.KindValidation, 1, 1 * time.Second},
		{classify.KindValidation, 4, 1 * time.Second},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_attempt%d", tc.kind, tc.attempt), func(t *testing.T) {
			got := computeDelay(tc.attempt, tc.kind, testBase, testMax, 1, 1, 0)
			if got != tc.want {
				t.Errorf("computeDelay = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComputeDelay_ClampsToMax(t *testing.T) {
	// 1s * 2^5 * 3 = 96s, well over the 30s cap.
	got := computeDelay(6, classify.KindRateLimit, testBase, testMax, 1, 1, 0)
	if got != testMax {
		t.Fatalf("computeDelay = %v, want cap %v", got, testMax)
	}
}

func TestComputeDelay_MonotoneUntilCap(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := computeDelay(attempt, classify.KindNetwork, testBase, testMax, 1, 1, 0)
		if d < prev {
			t.Fatalf("delay shrank at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > testMax {
			t.Fatalf("delay over cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
}

func TestComputeDelay_LearnedFactor(t *testing.T) {
	got := computeDelay(1, classify.KindNetwork, testBase, testMax, 1.5, 1, 0)
	if got != 1500*time.Millisecond {
		t.Fatalf("computeDelay = %v, want 1.5s", got)
	}
	// Non-positive learned factors are ignored.
	got = computeDelay(1, classify.KindNetwork, testBase, testMax, 0, 1, 0)
	if got != testBase {
		t.Fatalf("computeDelay = %v, want %v", got, testBase)
	}
}

func TestComputeDelay_JitterBounds(t *testing.T) {
	lo := computeDelay(2, classify.KindNetwork, testBase, testMax, 1, jitterFloor, 0)
	hi := computeDelay(2, classify.KindNetwork, testBase, testMax, 1, jitterFloor+jitterSpan, 0)
	if lo != 1600*time.Millisecond {
		t.Errorf("low jitter delay = %v, want 1.6s", lo)
	}
	if hi != 2400*time.Millisecond {
		t.Errorf("high jitter delay = %v, want 2.4s", hi)
	}
}

func TestComputeDelay_MillisecondRounding(t *testing.T) {
	got := computeDelay(1, classify.KindNetwork, testBase, testMax, 1, 0.80004, 0)
	if got != 800*time.Millisecond {
		t.Fatalf("computeDelay = %v, want 800ms", got)
	}
}

func TestComputeDelay_OverrideWins(t *testing.T) {
	got := computeDelay(1, classify.KindRateLimit, testBase, testMax, 1, 1, 9*time.Second)
	if got != 9*time.Second {
		t.Fatalf("computeDelay = %v, want override 9s", got)
	}
	// Overrides are still clamped to the cap.
	got = computeDelay(1, classify.KindRateLimit, testBase, testMax, 1, 1, 2*time.Minute)
	if got != testMax {
		t.Fatalf("computeDelay = %v, want clamped %v", got, testMax)
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := &classify.RateLimitError{Service: "upstream", RetryAfter: 4 * time.Second}
	if got := retryAfterHint(fmt.Errorf("call failed: %w", err)); got != 4*time.Second {
		t.Errorf("retryAfterHint = %v, want 4s", got)
	}
	if got := retryAfterHint(fmt.Errorf("plain failure")); got != 0 {
		t.Errorf("retryAfterHint = %v, want 0", got)
	}
	if got := retryAfterHint(&classify.RateLimitError{Service: "upstream"}); got != 0 {
		t.Errorf("retryAfterHint without hint = %v, want 0", got)
	}
}
