package retry

import (
	"log"
	"sync"
)

var (
	globalExec *Executor
	globalOnce sync.Once
)

// DefaultExecutor returns the process-wide executor, building a stock one on
// first use when SetGlobal was never called.
func DefaultExecutor() *Executor {
	globalOnce.Do(func() {
		if globalExec == nil {
			globalExec = NewExecutor()
		}
	})
	return globalExec
}

// SetGlobal installs exec as the process-wide executor. Call it during
// startup, before the first DefaultExecutor use; once the default exists the
// call logs a warning and does nothing. The already-initialized check is
// advisory only: it is not synchronized against a concurrent first use.
func SetGlobal(exec *Executor) {
	if exec == nil {
		return
	}
	if globalExec != nil {
		log.Printf("retry: SetGlobal ignored, default executor already initialized")
		return
	}
	globalOnce.Do(func() {
		globalExec = exec
	})
}
