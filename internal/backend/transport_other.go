//go:build !windows

package backend

import (
	"context"
	"net"

	"github.com/gorilla/websocket"
)

// newDialer returns a WebSocket dialer. With a pipe path configured the
// connection runs over that unix socket.
func newDialer(opts ClientOptions) *websocket.Dialer {
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.DialTimeout,
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  4 * 1024,
	}
	if opts.Pipe != "" {
		path := opts.Pipe
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
	}
	return dialer
}
