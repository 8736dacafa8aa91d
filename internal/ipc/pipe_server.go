package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"
)

const (
	connTimeout        = 10 * time.Second
	maxConcurrentConns = 8
	acceptRetryDelay   = 200 * time.Millisecond
)

// PipeServer answers requests from later snapqr launches on the per-user
// endpoint: a named pipe on Windows, a unix socket elsewhere. Each
// connection carries one request and one response.
type PipeServer struct {
	pipeName string
	executor CommandExecutor

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewPipeServer returns a server for pipeName, or DefaultPipeName when
// pipeName is empty.
func NewPipeServer(pipeName string, executor CommandExecutor) *PipeServer {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PipeServer{
		pipeName: pipeName,
		executor: executor,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, maxConcurrentConns),
	}
}

func (s *PipeServer) PipeName() string {
	return s.pipeName
}

// Start listens and serves in the background.
func (s *PipeServer) Start() error {
	if s.executor == nil {
		return errors.New("pipe server requires an executor")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("pipe server already started")
	}
	if s.ctx.Err() != nil {
		return errors.New("pipe server stopped")
	}
	listener, err := listenEndpoint(s.pipeName)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.pipeName, err)
	}
	s.listener = listener
	s.wg.Go(func() { s.serve(listener) })
	return nil
}

// Stop closes the listener and waits for in-flight requests. Calling it
// on a server that never started is a no-op.
func (s *PipeServer) Stop() error {
	s.cancel()
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *PipeServer) serve(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Warn("[WARN-IPC] accept failed", "pipe", s.pipeName, "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		select {
		case s.slots <- struct{}{}:
		default:
			// Activation is idempotent; a busy server just asks the caller to retry.
			_ = writeFrame(conn, Response{Error: "server busy, try again later"})
			_ = conn.Close()
			continue
		}
		s.wg.Go(func() {
			defer func() { <-s.slots }()
			s.handle(conn)
		})
	}
}

func (s *PipeServer) handle(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		slog.Warn("[WARN-IPC] set deadline failed", "error", err)
		return
	}

	raw, err := readFrame(newFrameReader(conn))
	if errors.Is(err, io.EOF) {
		return
	}
	var resp Response
	if err == nil {
		var req Request
		if req, err = decodeRequest(raw); err == nil {
			slog.Debug("[DEBUG-IPC] request", "command", req.Command, "args", req.Args)
			resp = s.execute(req)
		}
	}
	if err != nil {
		resp = Response{Error: "invalid request: " + err.Error()}
	}
	if err := writeFrame(conn, resp); err != nil {
		slog.Debug("[DEBUG-IPC] write response failed", "error", err)
	}
}

func (s *PipeServer) execute(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ERROR-IPC] executor panicked",
				"command", req.Command, "panic", r, "stack", string(debug.Stack()))
			resp = Response{Error: "internal error"}
		}
	}()
	return s.executor.Execute(req)
}
