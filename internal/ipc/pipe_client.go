package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	dialTimeout = 3 * time.Second
	sendTimeout = 10 * time.Second
)

// Send delivers one request to the running instance. pipeName "" means
// DefaultPipeName. A response with OK=false comes back with an error.
func Send(ctx context.Context, pipeName string, req Request) (Response, error) {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := dialEndpoint(dialCtx, pipeName)
	cancel()
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := writeFrame(conn, req); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", req.Command, err)
	}

	raw, err := readFrame(newFrameReader(conn))
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", req.Command, err)
	}
	resp, err := decodeResponse(raw)
	if err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s rejected: %s", req.Command, resp.Error)
	}
	return resp, nil
}

// IsConnectionError reports whether err means no instance is listening.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "open")
}
