package classify

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxBodySnippet bounds how much of an error body is retained on a failure.
const maxBodySnippet = 512

// StatusError is the raw transport view of a failed HTTP exchange, before
// ingestion into the failure taxonomy. Status 0 means a transport error.
type StatusError struct {
	Service string
	Status  int
	Method  string
	Header  http.Header
	Body    string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: transport error: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: http status %d", e.Service, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// RetryAfterHint parses the Retry-After header, if present.
func (e *StatusError) RetryAfterHint() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	raw := e.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// FromStatus ingests an HTTP status into the failure taxonomy:
//
//	400, 422      -> validation
//	401           -> authentication
//	403           -> validation (forbidden)
//	429           -> rate limit (carrying any Retry-After hint)
//	500, 502, 503 -> service unavailable
//	504           -> timeout
//	other 5xx     -> service unavailable
//	other 4xx     -> validation
//	0 (transport) -> network, via the opaque path
func FromStatus(raw *StatusError) error {
	if raw == nil {
		return nil
	}
	service := raw.Service

	switch raw.Status {
	case 0:
		// Transport failures keep their original error so the message
		// heuristics can see "connection refused" and friends.
		if raw.Err != nil {
			return raw.Err
		}
		return raw
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Service: service, Reason: "bad_request", Err: raw}
	case http.StatusUnauthorized:
		return &AuthenticationError{Service: service, Err: raw}
	case http.StatusForbidden:
		return &ValidationError{Service: service, Reason: "forbidden", Err: raw}
	case http.StatusTooManyRequests:
		hint, _ := raw.RetryAfterHint()
		return &RateLimitError{Service: service, RetryAfter: hint, Err: raw}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &ServiceUnavailableError{Service: service, Status: raw.Status, Err: raw}
	case http.StatusGatewayTimeout:
		return &UpstreamTimeoutError{Service: service, Err: raw}
	}

	if raw.Status >= 500 {
		return &ServiceUnavailableError{Service: service, Status: raw.Status, Err: raw}
	}
	if raw.Status >= 400 {
		return &ValidationError{Service: service, Reason: "http_" + strconv.Itoa(raw.Status), Err: raw}
	}
	return raw
}

// FromResponse drains resp and ingests a non-2xx status into the taxonomy.
// It returns nil for 2xx responses and leaves their body untouched.
//
// The error body is drained with a bound and closed so the connection can be
// reused across retries.
func FromResponse(service string, resp *http.Response) error {
	if resp == nil {
		return nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	method := ""
	if resp.Request != nil {
		method = resp.Request.Method
	}
	raw := &StatusError{
		Service: service,
		Status:  resp.StatusCode,
		Method:  method,
		Header:  resp.Header,
		Body:    Redact(string(snippet)),
	}
	return FromStatus(raw)
}
