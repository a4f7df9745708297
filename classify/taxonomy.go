package classify

import (
	"fmt"
	"time"
)

// Category is the broad bucket a failure falls into.
type Category string

const (
	CategoryRateLimit       Category = "rate_limit"
	CategoryValidation      Category = "validation"
	CategoryTimeout         Category = "timeout"
	CategoryAuthentication  Category = "authentication"
	CategoryExternalService Category = "external_service"
	CategoryNetwork         Category = "network"
	CategoryConfiguration   Category = "configuration"
	CategorySystem          Category = "system"
	CategoryUnknown         Category = "unknown"
)

// Severity orders failure impact. Higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Strategy tags how (or whether) a classified failure should be recovered.
type Strategy string

const (
	StrategyBackoffJitter       Strategy = "exponential_backoff_jitter"
	StrategyContentModification Strategy = "content_modification_required"
	StrategyLongerTimeout       Strategy = "retry_longer_timeout"
	StrategyReconfiguration     Strategy = "service_reconfiguration_required"
	StrategyHealthCheckRetry    Strategy = "health_check_retry"
	StrategyNetworkRetry        Strategy = "network_retry_backoff"
	StrategyLogFallback         Strategy = "log_and_fallback"
	StrategyInputValidation     Strategy = "input_validation_required"
)

// FailureKind identifies the concrete kind of a raw failure. It is the key
// used for breaker bookkeeping, delay adjustment, and learned multipliers.
type FailureKind string

const (
	KindRateLimit          FailureKind = "rate_limit"
	KindValidation         FailureKind = "validation"
	KindTimeout            FailureKind = "timeout"
	KindAuthentication     FailureKind = "authentication"
	KindServiceUnavailable FailureKind = "service_unavailable"
	KindNetwork            FailureKind = "network"
	KindUnknown            FailureKind = "unknown"
)

// ErrorContext carries the request identity attached to a classified failure.
type ErrorContext struct {
	Service       string
	Operation     string
	CorrelationID string
	Timestamp     time.Time
}

// ClassifiedError is the normalized view of a raw failure.
//
// Classification is deterministic: two failures of the same kind (and, for
// opaque failures, the same message) always classify identically.
type ClassifiedError struct {
	Kind              FailureKind
	Category          Category
	Severity          Severity
	Strategy          Strategy
	Retryable         bool
	EstimatedRecovery time.Duration // 0 means no estimate
	Message           string        // redacted, safe to log
	UserMessage       string
	Context           ErrorContext
	Cause             error
}

func (e *ClassifiedError) Error() string {
	if e.Context.Operation != "" {
		return fmt.Sprintf("bulwark: %s [%s/%s]: %s", e.Context.Operation, e.Category, e.Severity, e.Message)
	}
	return fmt.Sprintf("bulwark: [%s/%s]: %s", e.Category, e.Severity, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Cause }
