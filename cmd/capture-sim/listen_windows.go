//go:build windows

package main

import (
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

// listenPipe serves the simulator on a named pipe, e.g. "snapqr-capture" or
// `\\.\pipe\snapqr-capture`.
func listenPipe(name string) (net.Listener, error) {
	if !strings.HasPrefix(name, `\\.\pipe\`) {
		name = `\\.\pipe\` + name
	}
	return winio.ListenPipe(name, &winio.PipeConfig{
		// Current user and SYSTEM only.
		SecurityDescriptor: "D:P(A;;GA;;;SY)(A;;GA;;;OW)",
	})
}
