//go:build windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/user"
	"regexp"
	"strings"

	"github.com/Microsoft/go-winio"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\snapqr-[a-z0-9._-]{1,128}$`)

const pipePrefix = `\\.\pipe\`

func endpointForInstance(instance string) string {
	return pipePrefix + instance
}

func dialEndpoint(ctx context.Context, name string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, name)
}

// listenEndpoint creates a Named Pipe listener restricted to the current
// user. The DACL grants full access only to SYSTEM and the current user's
// SID, preventing other local users from connecting.
func listenEndpoint(name string) (net.Listener, error) {
	securityDescriptor, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(name, &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(maxFrameBytes),
		OutputBufferSize:   int32(maxFrameBytes),
	})
}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if sid == "" {
		return "", errors.New("current user SID is unavailable")
	}
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	// D:P protected DACL; SYSTEM and the current user SID get full access.
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
