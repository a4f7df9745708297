package classify

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestFromStatus_Mapping(t *testing.T) {
	cases := []struct {
		status   int
		kind     FailureKind
		category Category
	}{
		{400, KindValidation, CategoryValidation},
		{422, KindValidation, CategoryValidation},
		{401, KindAuthentication, CategoryAuthentication},
		{403, KindValidation, CategoryValidation},
		{429, KindRateLimit, CategoryRateLimit},
		{500, KindServiceUnavailable, CategoryExternalService},
		{502, KindServiceUnavailable, CategoryExternalService},
		{503, KindServiceUnavailable, CategoryExternalService},
		{504, KindTimeout, CategoryTimeout},
		{507, KindServiceUnavailable, CategoryExternalService},
		{418, KindValidation, CategoryValidation},
	}

	for _, tc := range cases {
		err := FromStatus(&StatusError{Service: "upstream", Status: tc.status})
		if got := Kind(err); got != tc.kind {
			t.Errorf("status %d: kind = %v, want %v", tc.status, got, tc.kind)
		}
		if got := Classify(err).Category; got != tc.category {
			t.Errorf("status %d: category = %v, want %v", tc.status, got, tc.category)
		}
	}
}

func TestFromStatus_ForbiddenIsMarked(t *testing.T) {
	err := FromStatus(&StatusError{Service: "upstream", Status: 403})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("403 did not produce a ValidationError: %T", err)
	}
	if ve.Reason != "forbidden" {
		t.Fatalf("reason = %q, want forbidden", ve.Reason)
	}
}

func TestFromStatus_RetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	err := FromStatus(&StatusError{Service: "upstream", Status: 429, Header: h})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("429 did not produce a RateLimitError: %T", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Fatalf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
}

func TestFromStatus_RetryAfterHTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))
	raw := &StatusError{Service: "upstream", Status: 429, Header: h}

	d, ok := raw.RetryAfterHint()
	if !ok {
		t.Fatal("no hint parsed from HTTP date")
	}
	if d <= 0 || d > 31*time.Second {
		t.Fatalf("hint = %v, want about 30s", d)
	}
}

func TestFromStatus_TransportErrorFallsBackToHeuristics(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:443: connection refused")
	err := FromStatus(&StatusError{Service: "upstream", Status: 0, Err: cause})
	if got := Kind(err); got != KindNetwork {
		t.Fatalf("kind = %v, want network", got)
	}
}

func TestFromResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 503,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"error":"overloaded"}`)),
	}
	err := FromResponse("image-gen", resp)

	var se *ServiceUnavailableError
	if !errors.As(err, &se) {
		t.Fatalf("503 did not produce a ServiceUnavailableError: %T", err)
	}
	if se.Status != 503 || se.Service != "image-gen" {
		t.Fatalf("unexpected failure: %+v", se)
	}

	var raw *StatusError
	if !errors.As(err, &raw) {
		t.Fatal("raw StatusError not preserved in the chain")
	}
	if !strings.Contains(raw.Body, "overloaded") {
		t.Fatalf("body snippet lost: %q", raw.Body)
	}
}

func TestFromResponse_SuccessIsNil(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}
	if err := FromResponse("upstream", resp); err != nil {
		t.Fatalf("2xx produced error: %v", err)
	}
	// Body must remain readable for the caller.
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "ok" {
		t.Fatalf("success body consumed: %q", b)
	}
}

func TestFromResponse_RedactsBodySnippet(t *testing.T) {
	resp := &http.Response{
		StatusCode: 400,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`bad request: api_key=sk-verysecret12345`)),
	}
	err := FromResponse("upstream", resp)

	var raw *StatusError
	if !errors.As(err, &raw) {
		t.Fatal("no StatusError in chain")
	}
	if strings.Contains(raw.Body, "sk-verysecret") {
		t.Fatalf("body snippet leaked a secret: %q", raw.Body)
	}
}
