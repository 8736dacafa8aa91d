//go:build !windows

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// listenPipe serves the simulator on a unix socket at path name.
func listenPipe(name string) (net.Listener, error) {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	return net.Listen("unix", name)
}
