//go:build windows

package backend

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
	"github.com/gorilla/websocket"
)

// newDialer returns a WebSocket dialer. With a pipe name configured the
// connection runs over that named pipe; bare names get the \\.\pipe\ prefix.
func newDialer(opts ClientOptions) *websocket.Dialer {
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.DialTimeout,
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  4 * 1024,
	}
	if opts.Pipe != "" {
		pipe := opts.Pipe
		if !strings.HasPrefix(pipe, `\\.\pipe\`) {
			pipe = `\\.\pipe\` + pipe
		}
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return winio.DialPipeContext(ctx, pipe)
		}
	}
	return dialer
}
