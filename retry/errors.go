package retry

import (
	"fmt"
	"strings"
	"time"

	"github.com/aponysus/bulwark/circuit"
	"github.com/aponysus/bulwark/classify"
)

// CircuitOpenError is returned when the breaker for an operation is open
// and the call was short-circuited. The wrapped operation was never invoked.
type CircuitOpenError struct {
	Operation  string
	Classified classify.ClassifiedError
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("bulwark: circuit open for %s", e.Operation)
}

func (e *CircuitOpenError) Unwrap() error { return &e.Classified }

// TerminalError is the enriched failure returned after the attempt loop
// ends without success. Unwrap exposes the last raw failure, so errors.As
// still finds the concrete failure kind.
type TerminalError struct {
	Operation    string
	Classified   classify.ClassifiedError
	RetryContext *RetryContext
	Cause        error
}

func (e *TerminalError) Error() string {
	attempts := 0
	var total time.Duration
	if e.RetryContext != nil {
		attempts = len(e.RetryContext.Attempts)
		total = e.RetryContext.TotalDuration
	}
	chain := make([]string, 0, attempts)
	if e.RetryContext != nil {
		for _, k := range e.RetryContext.ErrorProgression() {
			chain = append(chain, string(k))
		}
	}
	return fmt.Sprintf("bulwark: %s failed after %d attempt(s) in %s (errors: %s): %s",
		e.Operation, attempts, total.Round(time.Millisecond), strings.Join(chain, " -> "), e.Classified.Message)
}

func (e *TerminalError) Unwrap() error { return e.Cause }

// UserMessage returns the display-safe message for the terminal failure.
func (e *TerminalError) UserMessage() string { return e.Classified.UserMessage }

// CorrelationID returns the correlation id attached to the failure, if any.
func (e *TerminalError) CorrelationID() string { return e.Classified.Context.CorrelationID }

func circuitOpenClassified(name string, openTimeout time.Duration, now time.Time) classify.ClassifiedError {
	if openTimeout <= 0 {
		openTimeout = circuit.DefaultOpenTimeout
	}
	return classify.ClassifiedError{
		Kind:              classify.KindServiceUnavailable,
		Category:          classify.CategoryExternalService,
		Severity:          classify.SeverityHigh,
		Strategy:          classify.StrategyHealthCheckRetry,
		Retryable:         true,
		EstimatedRecovery: openTimeout,
		Message:           "circuit breaker open for operation " + name,
		UserMessage:       "The service is temporarily unavailable. Please try again later.",
		Context: classify.ErrorContext{
			Operation: name,
			Timestamp: now,
		},
	}
}
