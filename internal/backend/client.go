// Package backend talks to the capture service: typed remote commands over a
// request/response WebSocket channel and a bus for the events it pushes.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"snapqr/internal/protocol"
)

const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultCallTimeout    = 30 * time.Second
	DefaultReconnectDelay = 2 * time.Second

	defaultEventBuffer = 64

	writeDeadline = 5 * time.Second
	// readDeadline allows three missed pings.
	readDeadline       = 90 * time.Second
	pingInterval       = 30 * time.Second
	maxReadMessageSize = 4 * 1024 * 1024
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// URL is the capture service WebSocket endpoint, e.g. "ws://127.0.0.1:7878/ws".
	URL string
	// Pipe, when set, carries the WebSocket over a named pipe (Windows) or a
	// unix socket path instead of TCP. URL still supplies the request path.
	Pipe string

	DialTimeout    time.Duration
	CallTimeout    time.Duration
	ReconnectDelay time.Duration
	EventBuffer    int

	// OnConnect runs on its own goroutine after every successful connection.
	OnConnect func(ctx context.Context)
}

type callResult struct {
	frame protocol.Frame
	err   error
}

// Client is a single-connection capture service client.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
type Client struct {
	opts   ClientOptions
	dialer *websocket.Dialer
	events chan protocol.Event

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan callResult

	// writeMu serializes WriteMessage calls on conn.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient returns an unconnected client.
func NewClient(opts ClientOptions) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	return &Client{
		opts:    opts,
		dialer:  newDialer(opts),
		events:  make(chan protocol.Event, opts.EventBuffer),
		pending: make(map[string]chan callResult),
		done:    make(chan struct{}),
	}
}

// Events delivers pushed events in arrival order.
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// Connected reports whether a connection is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the capture service once and starts the read pump. It
// returns a channel closed when the connection ends.
func (c *Client) Connect(ctx context.Context) (<-chan struct{}, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dialCtx, c.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial capture service: %w", err)
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		closeConn(conn, "initial SetReadDeadline failure")
		return nil, fmt.Errorf("dial capture service: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		closeConn(conn, "client closed during dial")
		return nil, ErrClosed
	default:
	}
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		closeConn(old, "replaced by new connection")
	}

	slog.Info("[DEBUG-BACKEND] connected to capture service", "url", c.opts.URL, "pipe", c.opts.Pipe)

	closed := make(chan struct{})
	pingDone := make(chan struct{})
	go c.pingLoop(conn, pingDone)
	go func() {
		defer close(closed)
		defer close(pingDone)
		c.readPump(conn)
	}()

	if c.opts.OnConnect != nil {
		go c.opts.OnConnect(ctx)
	}
	return closed, nil
}

// Run keeps the client connected until ctx is cancelled or Close is called,
// redialing after ReconnectDelay whenever the connection drops.
func (c *Client) Run(ctx context.Context) {
	for {
		closed, err := c.Connect(ctx)
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			slog.Debug("[DEBUG-BACKEND] connect failed", "error", err, "retryIn", c.opts.ReconnectDelay)
		} else {
			select {
			case <-closed:
				slog.Warn("[WARN-BACKEND] capture service connection dropped", "retryIn", c.opts.ReconnectDelay)
			case <-ctx.Done():
				c.dropConn("context cancelled")
				return
			case <-c.done:
				<-closed
				return
			}
		}

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Call sends command with args and waits for its response. result, when
// non-nil, receives the decoded result payload. A rejected command yields a
// *RemoteError.
func (c *Client) Call(ctx context.Context, command string, args any, result any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	rawArgs, err := protocol.MarshalArgs(args)
	if err != nil {
		return fmt.Errorf("%s: encode args: %w", command, err)
	}
	id := uuid.NewString()
	raw, err := protocol.EncodeFrame(protocol.Frame{
		Type:    protocol.FrameRequest,
		ID:      id,
		Command: command,
		Args:    rawArgs,
	})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", command, err)
	}

	reply := make(chan callResult, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", command, ErrNotConnected)
	}
	c.pending[id] = reply
	c.mu.Unlock()

	if err := c.write(conn, websocket.TextMessage, raw); err != nil {
		c.forget(id)
		return fmt.Errorf("%s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return fmt.Errorf("%s: %w", command, ctx.Err())
	case res := <-reply:
		if res.err != nil {
			return fmt.Errorf("%s: %w", command, res.err)
		}
		if !res.frame.OK {
			return &RemoteError{Command: command, Message: res.frame.Error}
		}
		if result != nil && len(res.frame.Result) > 0 {
			if err := json.Unmarshal(res.frame.Result, result); err != nil {
				return fmt.Errorf("%s: decode result: %w", command, err)
			}
		}
		return nil
	}
}

// DispatchLoop publishes every received event to bus until ctx is cancelled
// or the client is closed.
func (c *Client) DispatchLoop(ctx context.Context, bus *Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.events:
			bus.Publish(ev)
		}
	}
}

// Close drops the connection and fails pending calls. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.dropConn("client closed")
		c.failPending(ErrClosed)
	})
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] backend readPump recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		if c.clearIfCurrent(conn) {
			c.failPending(ErrConnectionLost)
		}
		closeConn(conn, "read pump exit")
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[DEBUG-BACKEND] read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			slog.Debug("[DEBUG-BACKEND] invalid frame from capture service", "error", err)
			continue
		}
		switch frame.Type {
		case protocol.FrameResponse:
			c.deliver(frame)
		case protocol.FrameEvent:
			ev, err := protocol.EventFromFrame(frame)
			if err != nil {
				slog.Debug("[DEBUG-BACKEND] invalid event frame", "error", err)
				continue
			}
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		default:
			slog.Debug("[DEBUG-BACKEND] unexpected frame type", "type", frame.Type)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, websocket.PingMessage, nil); err != nil {
				slog.Debug("[DEBUG-BACKEND] ping failed, connection likely dead", "error", err)
				c.clearIfCurrent(conn)
				closeConn(conn, "ping failure")
				return
			}
		}
	}
}

// write serializes a single message with a deadline. A failed deadline or
// write closes the connection.
func (c *Client) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.clearIfCurrent(conn)
		closeConn(conn, "SetWriteDeadline failure")
		return fmt.Errorf("set write deadline: %w", err)
	}
	err := conn.WriteMessage(messageType, data)
	if clearErr := conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-BACKEND] clear write deadline failed (non-fatal)", "error", clearErr)
	}
	if err != nil {
		c.clearIfCurrent(conn)
		closeConn(conn, "write error")
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) deliver(frame protocol.Frame) {
	c.mu.Lock()
	reply, ok := c.pending[frame.ID]
	delete(c.pending, frame.ID)
	c.mu.Unlock()
	if !ok {
		slog.Debug("[DEBUG-BACKEND] response for unknown request", "id", frame.ID)
		return
	}
	reply <- callResult{frame: frame}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan callResult)
	c.mu.Unlock()
	for _, reply := range pending {
		reply <- callResult{err: err}
	}
}

func (c *Client) clearIfCurrent(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return false
	}
	c.conn = nil
	return true
}

func (c *Client) dropConn(reason string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		closeConn(conn, reason)
	}
}

func closeConn(conn *websocket.Conn, reason string) {
	if err := conn.Close(); err != nil {
		slog.Debug("[DEBUG-BACKEND] connection close", "reason", reason, "error", err)
	}
}
