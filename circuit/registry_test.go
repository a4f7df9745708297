package circuit

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_LazyCreate(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2})

	b := r.Get("ai.completion")
	if b == nil {
		t.Fatal("Get returned nil")
	}
	if again := r.Get("ai.completion"); again != b {
		t.Fatal("Get created a second breaker for the same name")
	}
	if b.cfg.Threshold != 2 {
		t.Fatalf("breaker threshold = %d, want registry default 2", b.cfg.Threshold)
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2})

	b := r.GetOrCreate("ai.vision", Config{Threshold: 7})
	if b.cfg.Threshold != 7 {
		t.Fatalf("threshold = %d, want 7", b.cfg.Threshold)
	}

	// An existing breaker is not reconfigured.
	again := r.GetOrCreate("ai.vision", Config{Threshold: 3})
	if again != b || again.cfg.Threshold != 7 {
		t.Fatalf("GetOrCreate replaced an existing breaker")
	}

	// Zero config falls back to the registry defaults.
	other := r.GetOrCreate("ai.image", Config{})
	if other.cfg.Threshold != 2 {
		t.Fatalf("threshold = %d, want registry default 2", other.cfg.Threshold)
	}
}

func TestRegistry_OperationsAreIndependent(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1})

	r.RecordFailure("a")
	if !r.IsOpen("a") {
		t.Fatal("breaker a should be open")
	}
	if r.IsOpen("b") {
		t.Fatal("breaker b should be unaffected")
	}
}

func TestRegistry_ResetAndResetAll(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1})
	r.RecordFailure("a")
	r.RecordFailure("b")

	r.Reset("a")
	if r.IsOpen("a") {
		t.Fatal("breaker a still open after Reset")
	}
	if !r.IsOpen("b") {
		t.Fatal("breaker b should still be open")
	}

	r.ResetAll()
	if r.IsOpen("b") {
		t.Fatal("breaker b still open after ResetAll")
	}
}

func TestRegistry_States(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, OpenTimeout: time.Minute})
	r.Get("ok")
	r.RecordFailure("bad")

	states := r.States()
	if states["ok"] != StateClosed {
		t.Fatalf("states[ok] = %v", states["ok"])
	}
	if states["bad"] != StateOpen {
		t.Fatalf("states[bad] = %v", states["bad"])
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordFailure("shared")
				r.RecordSuccess("shared")
				r.IsOpen("shared")
			}
		}()
	}
	wg.Wait()

	// Equal successes and failures: the counter should be back at zero.
	if got := r.Get("shared").Snapshot().Failures; got != 0 {
		t.Fatalf("failures after balanced load = %d, want 0", got)
	}
}
