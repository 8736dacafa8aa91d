package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Requests and responses are single JSON lines; a few hundred bytes each.
const maxFrameBytes = 16 * 1024

func newFrameReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, maxFrameBytes+1)
}

// readFrame reads one newline-terminated frame. A last frame without the
// newline is accepted; an empty stream yields io.EOF.
func readFrame(r *bufio.Reader) ([]byte, error) {
	raw, err := r.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	case errors.Is(err, io.EOF):
		if len(raw) == 0 {
			return nil, io.EOF
		}
	case err != nil:
		return nil, err
	}
	return raw, nil
}

// writeFrame writes v as one JSON line.
func writeFrame(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
