package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Call while no capture service connection
	// is established.
	ErrNotConnected = errors.New("capture service not connected")
	// ErrConnectionLost fails calls whose connection dropped before a
	// response arrived.
	ErrConnectionLost = errors.New("capture service connection lost")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture service client closed")
	// ErrInvalidCloseBehavior rejects close behaviors other than exit and tray.
	ErrInvalidCloseBehavior = errors.New("invalid close behavior")
)

// RemoteError is a command rejected by the capture service.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected by capture service", e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}
