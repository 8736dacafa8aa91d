//go:build windows

package singleinstance

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Local\ scopes the mutex to the logon session, matching the per-user pipe.
func lockName(instance string) string {
	return `Local\` + instance
}

func acquire(name string) (func() error, error) {
	nameUTF16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid mutex name %q: %w", name, err)
	}
	h, err := windows.CreateMutex(nil, true, nameUTF16)
	if err == windows.ERROR_ALREADY_EXISTS {
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		return nil, fmt.Errorf("CreateMutex %q: %w", name, err)
	}
	return func() error { return windows.CloseHandle(h) }, nil
}
