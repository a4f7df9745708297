package classify

import (
	"errors"
	"strings"
	"time"
)

// Estimated recovery windows per failure kind.
const (
	recoveryRateLimit   = 30 * time.Second
	recoveryTimeout     = 10 * time.Second
	recoveryUnavailable = 120 * time.Second
	recoveryNetwork     = 15 * time.Second
	recoverySystem      = 60 * time.Second
)

// Classify maps a raw failure to its ClassifiedError.
//
// Typed failure kinds classify directly; opaque errors are matched against
// message keywords before defaulting to a system-level classification.
// Messages are redacted before they are stored on the result.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{
			Kind:        KindUnknown,
			Category:    CategoryUnknown,
			Severity:    SeverityLow,
			Retryable:   false,
			Message:     "no error",
			UserMessage: "The request completed.",
		}
	}

	cls := classifyTyped(err)
	cls.Message = Redact(err.Error())
	cls.Cause = err
	cls.Context.Service = ServiceOf(err)
	return cls
}

func classifyTyped(err error) ClassifiedError {
	var (
		rl *RateLimitError
		ve *ValidationError
		te *UpstreamTimeoutError
		ae *AuthenticationError
		se *ServiceUnavailableError
	)

	switch {
	case errors.As(err, &rl):
		return ClassifiedError{
			Kind:              KindRateLimit,
			Category:          CategoryRateLimit,
			Severity:          SeverityMedium,
			Strategy:          StrategyBackoffJitter,
			Retryable:         true,
			EstimatedRecovery: recoveryRateLimit,
			UserMessage:       "The service is receiving too many requests. Please try again shortly.",
		}
	case errors.As(err, &ve):
		return ClassifiedError{
			Kind:        KindValidation,
			Category:    CategoryValidation,
			Severity:    SeverityHigh,
			Strategy:    StrategyContentModification,
			Retryable:   false,
			UserMessage: "The request was rejected. Please adjust the content and try again.",
		}
	case errors.As(err, &te):
		return ClassifiedError{
			Kind:              KindTimeout,
			Category:          CategoryTimeout,
			Severity:          SeverityMedium,
			Strategy:          StrategyLongerTimeout,
			Retryable:         true,
			EstimatedRecovery: recoveryTimeout,
			UserMessage:       "The service took too long to respond. Please try again.",
		}
	case errors.As(err, &ae):
		return ClassifiedError{
			Kind:        KindAuthentication,
			Category:    CategoryAuthentication,
			Severity:    SeverityCritical,
			Strategy:    StrategyReconfiguration,
			Retryable:   false,
			UserMessage: "The service is not configured correctly. Please contact support.",
		}
	case errors.As(err, &se):
		return ClassifiedError{
			Kind:              KindServiceUnavailable,
			Category:          CategoryExternalService,
			Severity:          SeverityHigh,
			Strategy:          StrategyHealthCheckRetry,
			Retryable:         true,
			EstimatedRecovery: recoveryUnavailable,
			UserMessage:       "The service is temporarily unavailable. Please try again later.",
		}
	}

	return classifyHeuristic(err.Error())
}

// heuristicKind is the kind-only form of the message heuristics, used where
// a full classification is not needed.
func heuristicKind(msg string) FailureKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "timeout") || strings.Contains(m, "timed out"):
		return KindTimeout
	case strings.Contains(m, "network") || strings.Contains(m, "connection"):
		return KindNetwork
	case strings.Contains(m, "rate limit") || strings.Contains(m, "quota"):
		return KindRateLimit
	default:
		return KindUnknown
	}
}

func classifyHeuristic(msg string) ClassifiedError {
	switch heuristicKind(msg) {
	case KindTimeout:
		return ClassifiedError{
			Kind:              KindTimeout,
			Category:          CategoryTimeout,
			Severity:          SeverityMedium,
			Strategy:          StrategyNetworkRetry,
			Retryable:         true,
			EstimatedRecovery: recoveryTimeout,
			UserMessage:       "The service took too long to respond. Please try again.",
		}
	case KindNetwork:
		return ClassifiedError{
			Kind:              KindNetwork,
			Category:          CategoryNetwork,
			Severity:          SeverityMedium,
			Strategy:          StrategyNetworkRetry,
			Retryable:         true,
			EstimatedRecovery: recoveryNetwork,
			UserMessage:       "A network problem interrupted the request. Please try again.",
		}
	case KindRateLimit:
		return ClassifiedError{
			Kind:              KindRateLimit,
			Category:          CategoryRateLimit,
			Severity:          SeverityMedium,
			Strategy:          StrategyNetworkRetry,
			Retryable:         true,
			EstimatedRecovery: recoveryRateLimit,
			UserMessage:       "The service is receiving too many requests. Please try again shortly.",
		}
	}

	return ClassifiedError{
		Kind:              KindUnknown,
		Category:          CategorySystem,
		Severity:          SeverityHigh,
		Strategy:          StrategyLogFallback,
		Retryable:         true,
		EstimatedRecovery: recoverySystem,
		UserMessage:       "Something went wrong. Please try again.",
	}
}
