package orchestrator

import "sync"

// runLocks provides per-run mutual exclusion within this process. Two ticks
// for the same run delivered to concurrent workers would otherwise race the
// delete-then-insert on the run step and double-advance the cursor; the
// second tick is refused instead and retried by a later ticker pass.
type runLocks struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

func newRunLocks() *runLocks {
	return &runLocks{locked: make(map[string]struct{})}
}

// tryAcquire returns true and marks the run in-flight if it is not already.
func (l *runLocks) tryAcquire(runID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.locked[runID]; ok {
		return false
	}
	l.locked[runID] = struct{}{}
	return true
}

// release removes the run from the in-flight set.
func (l *runLocks) release(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, runID)
}
