package retry

import (
	"sync"
	"testing"
)

func resetGlobal() {
	globalExec = nil
	globalOnce = sync.Once{}
}

func TestDefaultExecutor(t *testing.T) {
	resetGlobal()

	first := DefaultExecutor()
	if first == nil {
		t.Fatal("no default executor")
	}
	if DefaultExecutor() != first {
		t.Fatal("default executor not stable across calls")
	}
}

func TestSetGlobal(t *testing.T) {
	resetGlobal()

	custom := NewExecutor()
	SetGlobal(custom)
	if DefaultExecutor() != custom {
		t.Fatal("SetGlobal before first use was ignored")
	}

	// After initialization, later SetGlobal calls are ignored.
	other := NewExecutor()
	SetGlobal(other)
	if DefaultExecutor() != custom {
		t.Fatal("SetGlobal replaced an already-initialized executor")
	}

	resetGlobal()
	SetGlobal(nil)
	if DefaultExecutor() == nil {
		t.Fatal("nil SetGlobal broke lazy initialization")
	}
}
