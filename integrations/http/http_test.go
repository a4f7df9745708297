package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aponysus/bulwark/classify"
	"github.com/aponysus/bulwark/profile"
	"github.com/aponysus/bulwark/retry"
)

func fastExecutor() *retry.Executor {
	fast := profile.Profile{Retry: profile.RetryProfile{
		MaxAttempts: 3,
		BaseDelay:   profile.Duration(time.Millisecond),
		MaxDelay:    profile.Duration(20 * time.Millisecond),
	}}
	return retry.NewExecutor(
		retry.WithProvider(&profile.StaticProvider{Default: &fast}),
	)
}

func TestDo_SuccessAfterServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := Do(context.Background(), fastExecutor(), "fetch.op", "upstream", srv.Client(), req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if hits != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Fatalf("body = %q", body)
	}
}

func TestDo_NonRetryableStatusStopsImmediately(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := Do(context.Background(), fastExecutor(), "fetch.op", "upstream", srv.Client(), req)
	if err == nil {
		t.Fatal("expected failure")
	}
	if hits != 1 {
		t.Fatalf("401 retried: %d hits", hits)
	}

	var ae *classify.AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("err chain lacks AuthenticationError: %v", err)
	}
	var term *retry.TerminalError
	if !errors.As(err, &term) {
		t.Fatalf("err is %T", err)
	}
	if term.Classified.Category != classify.CategoryAuthentication {
		t.Fatalf("category = %v", term.Classified.Category)
	}
}

func TestDo_RequestBodyReplayedPerAttempt(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 2 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"prompt":"hi"}`))
	resp, err := Do(context.Background(), fastExecutor(), "post.op", "upstream", srv.Client(), req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("server saw %d requests", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"prompt":"hi"}` {
			t.Fatalf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestDo_NonReplayableBodyRejected(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	req.Body = io.NopCloser(strings.NewReader("one-shot"))
	req.GetBody = nil

	_, err := Do(context.Background(), fastExecutor(), "post.op", "upstream", nil, req)
	if err == nil || !strings.Contains(err.Error(), "not replayable") {
		t.Fatalf("err = %v", err)
	}
}

func TestDo_TransportErrorClassifiedAsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := Do(context.Background(), fastExecutor(), "fetch.op", "upstream", nil, req)
	if err == nil {
		t.Fatal("expected failure")
	}

	var term *retry.TerminalError
	if !errors.As(err, &term) {
		t.Fatalf("err is %T: %v", err, err)
	}
	if term.Classified.Category != classify.CategoryNetwork {
		t.Fatalf("category = %v", term.Classified.Category)
	}
}

func TestDo_RateLimitHintDrivesBackoff(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	exec := retry.NewExecutor(
		retry.WithProvider(&profile.StaticProvider{}),
		retry.WithSleep(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return ctx.Err()
		}),
	)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := Do(context.Background(), exec, "fetch.op", "upstream", srv.Client(), req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if hits != 2 {
		t.Fatalf("hits = %d", hits)
	}
	if len(sleeps) != 1 {
		t.Fatalf("sleeps = %v", sleeps)
	}
}
