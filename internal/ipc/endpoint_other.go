//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var pipeNamePattern = regexp.MustCompile(`^/[\w./~-]*snapqr-[A-Za-z0-9._-]{1,128}\.sock$`)

// ErrEndpointInUse is returned by listenEndpoint when another process is
// already serving the socket.
var ErrEndpointInUse = errors.New("activation endpoint already in use")

func endpointForInstance(instance string) string {
	return filepath.Join(os.TempDir(), instance+".sock")
}

func dialEndpoint(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", name)
}

// listenEndpoint listens on a unix socket readable only by the owner. A
// stale socket file left by a crashed process is removed first.
func listenEndpoint(name string) (net.Listener, error) {
	if _, err := os.Stat(name); err == nil {
		conn, dialErr := net.DialTimeout("unix", name, 200*time.Millisecond)
		if dialErr == nil {
			_ = conn.Close()
			return nil, ErrEndpointInUse
		}
		if err := os.Remove(name); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	listener, err := net.Listen("unix", name)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}
