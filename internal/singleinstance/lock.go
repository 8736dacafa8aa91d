// Package singleinstance keeps one snapqr window per user. A second launch
// sees ErrAlreadyRunning and signals the running instance over ipc instead.
package singleinstance

import (
	"errors"
	"strings"
	"sync"

	"snapqr/internal/userutil"
)

const instancePrefix = "snapqr"

// ErrAlreadyRunning is returned by TryLock when another process holds the lock.
var ErrAlreadyRunning = errors.New("snapqr is already running")

// Lock is held for the lifetime of the running instance. The OS drops it
// when the process exits, so a crash never leaves a stale lock.
type Lock struct {
	mu      sync.Mutex
	release func() error
}

// TryLock acquires the lock called name without blocking.
func TryLock(name string) (*Lock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("singleinstance: lock name is required")
	}
	release, err := acquire(name)
	if err != nil {
		return nil, err
	}
	return &Lock{release: release}, nil
}

// Release gives the lock up. It is idempotent and safe on a nil Lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}

// DefaultName returns the per-user lock name. It shares its instance
// suffix with ipc.DefaultPipeName.
func DefaultName() string {
	return lockName(userutil.InstanceName(instancePrefix))
}
