// Package wsserver serves the capture service side of the backend protocol:
// it answers command requests through a Handler and pushes events to the
// connected control layer. It backs the capture simulator and the backend
// client tests.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"snapqr/internal/protocol"
)

const (
	writeTimeout = 5 * time.Second
	// idleTimeout tolerates about three missed pings.
	idleTimeout  = 90 * time.Second
	pingEvery    = 30 * time.Second
	maxFrameSize = 64 * 1024
)

// ErrNoClient is returned by Emit while no client is connected.
var ErrNoClient = errors.New("wsserver: no client connected")

var upgrader = websocket.Upgrader{
	// Loopback or local pipe only.
	CheckOrigin:     func(*http.Request) bool { return true },
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
}

// Handler answers one command. The returned value is encoded as the
// response result; a non-nil error becomes a rejected response.
type Handler interface {
	HandleCommand(ctx context.Context, command string, args json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, command string, args json.RawMessage) (any, error)

func (f HandlerFunc) HandleCommand(ctx context.Context, command string, args json.RawMessage) (any, error) {
	return f(ctx, command, args)
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the TCP listen address; empty means an OS-assigned loopback
	// port. Ignored when Listener is set.
	Addr string
	// Listener replaces the TCP listener, e.g. a named pipe or unix socket.
	Listener net.Listener
	Handler  Handler
}

// peer is one accepted connection. All writes go through it so that pings,
// responses and events never interleave on the wire.
type peer struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (p *peer) write(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(messageType, data)
}

func (p *peer) close(reason string) {
	p.closeOnce.Do(func() {
		if err := p.conn.Close(); err != nil {
			slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", err)
		}
	})
}

// Hub accepts one control-layer connection at a time; a new connection
// replaces the previous one. Any failed write drops the connection and the
// client is expected to reconnect.
type Hub struct {
	opts HubOptions

	mu      sync.RWMutex
	current *peer

	server   *http.Server
	url      string
	stopOnce sync.Once
}

// NewHub creates a Hub. Nothing is served until Start.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts}
}

// Start serves /ws in the background. ctx is the base context of every
// request; Stop must still be called.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("wsserver: already started")
	}
	ln := h.opts.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", h.opts.Addr); err != nil {
			return fmt.Errorf("wsserver: listen: %w", err)
		}
	}

	h.url = "ws://localhost/ws"
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", addr.Port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.accept)
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", err)
		}
	}()

	slog.Info("[DEBUG-WS] server started", "url", h.url, "addr", ln.Addr().String())
	return nil
}

// Stop closes the active connection and shuts the server down. Repeated
// calls return nil.
func (h *Hub) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		h.DropConnection()
		if h.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := h.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("wsserver: shutdown: %w", shutdownErr)
		}
		slog.Info("[DEBUG-WS] server stopped")
	})
	return err
}

// URL returns the WebSocket URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

func (h *Hub) HasActiveConnection() bool {
	return h.active() != nil
}

// DropConnection closes the active connection, if any, and keeps serving.
func (h *Hub) DropConnection() {
	h.mu.Lock()
	p := h.current
	h.current = nil
	h.mu.Unlock()
	if p != nil {
		p.close("dropped")
	}
}

// Emit pushes an event to the connected client. payload may be nil.
func (h *Hub) Emit(event, sessionID string, payload any) error {
	frame := protocol.Frame{Type: protocol.FrameEvent, Event: event, SessionID: sessionID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wsserver: encode %s payload: %w", event, err)
		}
		frame.Payload = raw
	}
	p := h.active()
	if p == nil {
		return ErrNoClient
	}
	return h.send(p, frame)
}

func (h *Hub) active() *peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// install makes p the active peer and returns the one it replaced.
func (h *Hub) install(p *peer) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = p
	return prev
}

// detach closes p and forgets it if it is still the active peer.
func (h *Hub) detach(p *peer, reason string) {
	h.mu.Lock()
	if h.current == p {
		h.current = nil
	}
	h.mu.Unlock()
	p.close(reason)
}

func (h *Hub) send(p *peer, frame protocol.Frame) error {
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return fmt.Errorf("wsserver: encode frame: %w", err)
	}
	if err := p.write(websocket.TextMessage, data); err != nil {
		slog.Warn("[DEBUG-WS] write failed, closing connection", "type", frame.Type, "error", err)
		h.detach(p, "write error")
		return fmt.Errorf("wsserver: write: %w", err)
	}
	return nil
}

func (h *Hub) accept(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}
	p := &peer{conn: conn}

	extend := func() error { return conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	conn.SetReadLimit(maxFrameSize)
	if err := extend(); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		p.close("read deadline")
		return
	}
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(data string) error {
		if err := extend(); err != nil {
			return err
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	if prev := h.install(p); prev != nil {
		prev.close("replaced by new connection")
	}
	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr())

	done := make(chan struct{})
	go h.keepAlive(p, done)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver read loop recovered", "panic", rec, "stack", string(debug.Stack()))
		}
		close(done)
		h.detach(p, "read loop exit")
		slog.Info("[DEBUG-WS] client disconnected")
	}()

	h.readRequests(r.Context(), p)
}

// readRequests dispatches every request frame on its own goroutine so a slow
// command never stalls the reader.
func (h *Hub) readRequests(ctx context.Context, p *peer) {
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-WS] read error", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		frame, err := protocol.DecodeFrame(data)
		switch {
		case err != nil:
			slog.Debug("[DEBUG-WS] invalid frame from client", "error", err)
		case frame.Type != protocol.FrameRequest:
			slog.Debug("[DEBUG-WS] ignoring non-request frame", "type", frame.Type)
		default:
			go h.respond(ctx, p, frame)
		}
	}
}

func (h *Hub) respond(ctx context.Context, p *peer, req protocol.Frame) {
	resp := protocol.Frame{Type: protocol.FrameResponse, ID: req.ID}
	result, err := h.dispatch(ctx, req)
	if err == nil && result != nil {
		resp.Result, err = json.Marshal(result)
		if err != nil {
			err = fmt.Errorf("encode result: %w", err)
		}
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Result = nil
	} else {
		resp.OK = true
	}
	if sendErr := h.send(p, resp); sendErr != nil {
		slog.Debug("[DEBUG-WS] failed to send response", "command", req.Command, "error", sendErr)
	}
}

func (h *Hub) dispatch(ctx context.Context, req protocol.Frame) (result any, err error) {
	command := strings.TrimSpace(req.Command)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver command handler recovered",
				"command", command, "panic", rec, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("internal error handling %s", command)
		}
	}()
	switch {
	case command == "":
		return nil, errors.New("command is required")
	case h.opts.Handler == nil:
		return nil, fmt.Errorf("unsupported command %q", command)
	}
	return h.opts.Handler.HandleCommand(ctx, command, req.Args)
}

// keepAlive pings p until done closes or a ping fails.
func (h *Hub) keepAlive(p *peer, done <-chan struct{}) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				slog.Debug("[DEBUG-WS] ping failed, connection likely dead", "error", err)
				h.detach(p, "ping failure")
				return
			}
		}
	}
}
