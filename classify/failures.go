package classify

import (
	"errors"
	"fmt"
	"time"
)

// The typed failure kinds form the closed variant set the classifier
// recognizes directly. Anything else goes through the message heuristics.

// Failure is implemented by every typed failure kind.
type Failure interface {
	error
	FailureKind() FailureKind
}

// RateLimitError signals an upstream quota or rate limit rejection.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration // 0 when the upstream gave no hint
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Service)
}

func (e *RateLimitError) Unwrap() error            { return e.Err }
func (e *RateLimitError) FailureKind() FailureKind { return KindRateLimit }

// ValidationError signals a content-policy or input-validation rejection.
// Retrying the same payload will never help.
type ValidationError struct {
	Service string
	Reason  string // e.g. "content_policy", "forbidden", "bad_request"
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: validation failed (%s)", e.Service, e.Reason)
	}
	return fmt.Sprintf("%s: validation failed", e.Service)
}

func (e *ValidationError) Unwrap() error            { return e.Err }
func (e *ValidationError) FailureKind() FailureKind { return KindValidation }

// UpstreamTimeoutError signals that an upstream call exceeded its own deadline.
type UpstreamTimeoutError struct {
	Service string
	Elapsed time.Duration
	Err     error
}

func (e *UpstreamTimeoutError) Error() string {
	if e.Elapsed > 0 {
		return fmt.Sprintf("%s: timed out after %s", e.Service, e.Elapsed)
	}
	return fmt.Sprintf("%s: timed out", e.Service)
}

func (e *UpstreamTimeoutError) Unwrap() error            { return e.Err }
func (e *UpstreamTimeoutError) FailureKind() FailureKind { return KindTimeout }

// AuthenticationError signals rejected credentials. Never retryable.
type AuthenticationError struct {
	Service string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed", e.Service)
}

func (e *AuthenticationError) Unwrap() error            { return e.Err }
func (e *AuthenticationError) FailureKind() FailureKind { return KindAuthentication }

// ServiceUnavailableError signals an unhealthy or overloaded upstream.
type ServiceUnavailableError struct {
	Service string
	Status  int // HTTP status when known, 0 otherwise
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: unavailable (status %d)", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: unavailable", e.Service)
}

func (e *ServiceUnavailableError) Unwrap() error            { return e.Err }
func (e *ServiceUnavailableError) FailureKind() FailureKind { return KindServiceUnavailable }

// Kind resolves the FailureKind for err. Typed failures report their own
// kind; opaque errors fall back to the message heuristics.
func Kind(err error) FailureKind {
	if err == nil {
		return KindUnknown
	}
	var f Failure
	if errors.As(err, &f) {
		return f.FailureKind()
	}
	return heuristicKind(err.Error())
}

// ServiceOf extracts the service name a typed failure names, if any.
func ServiceOf(err error) string {
	var (
		rl *RateLimitError
		ve *ValidationError
		te *UpstreamTimeoutError
		ae *AuthenticationError
		se *ServiceUnavailableError
	)
	switch {
	case errors.As(err, &rl):
		return rl.Service
	case errors.As(err, &ve):
		return ve.Service
	case errors.As(err, &te):
		return te.Service
	case errors.As(err, &ae):
		return ae.Service
	case errors.As(err, &se):
		return se.Service
	}
	return ""
}
