package testutil

import (
	"testing"
	"time"
)

// WaitFor polls cond every 10ms until it holds or timeout elapses, and
// reports whether it held.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return cond()
		}
	}
}
