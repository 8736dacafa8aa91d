package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Entry is what the callback observes for each teed record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	// Group is the accumulated dot-separated slog group, or empty.
	Group string
	// Detail holds handler and record attributes as "key=value" pairs, so a
	// capture failure logged with an "error" attribute keeps its cause.
	Detail string
}

// EntryCallback is invoked for each log record at or above the capture threshold.
type EntryCallback func(Entry)

// TeeHandler wraps a base [slog.Handler] and tees records at or above minLevel
// to a callback function. All records are forwarded to the base handler regardless
// of level; only the callback invocation is gated by minLevel.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Leveler
	group    string
	attrs    []string
}

// NewTeeHandler creates a TeeHandler that delegates to base and invokes callback
// for every record whose level is >= minLevel. minLevel may be a *slog.LevelVar
// so the threshold follows config reloads.
//
// Passing a nil callback is safe; the handler will simply delegate to base without
// teeing.
func NewTeeHandler(base slog.Handler, minLevel slog.Leveler, callback EntryCallback) *TeeHandler {
	if minLevel == nil {
		minLevel = slog.LevelWarn
	}
	return &TeeHandler{
		base:     base,
		callback: callback,
		minLevel: minLevel,
	}
}

// Enabled reports whether the base handler is enabled for the given level.
// The callback threshold does not affect this.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler, then conditionally invokes
// the callback. The callback runs even when the base handler fails.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.callback != nil && record.Level >= h.minLevel.Level() {
		entry := Entry{
			Time:    record.Time,
			Level:   record.Level,
			Message: record.Message,
			Group:   h.group,
			Detail:  h.detail(record),
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					// stderr, not slog: logging here would re-enter this handler.
					fmt.Fprintf(os.Stderr, "[session-log] callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(entry)
		}()
	}

	return err
}

func (h *TeeHandler) detail(record slog.Record) string {
	parts := make([]string, 0, len(h.attrs)+record.NumAttrs())
	parts = append(parts, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		parts = appendAttr(parts, h.group, a)
		return true
	})
	return strings.Join(parts, " ")
}

func appendAttr(parts []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return parts
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			parts = appendAttr(parts, key, inner)
		}
		return parts
	}
	return append(parts, key+"="+a.Value.String())
}

// WithAttrs returns a new TeeHandler whose base handler has the given attributes
// applied. The callback, threshold, and accumulated group are preserved.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := h.clone()
	next.base = h.base.WithAttrs(attrs)
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, h.group, a)
	}
	return next
}

// WithGroup returns a new TeeHandler whose base handler is wrapped with the
// given group name.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.base = h.base.WithGroup(name)
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return next
}

func (h *TeeHandler) clone() *TeeHandler {
	return &TeeHandler{
		base:     h.base,
		callback: h.callback,
		minLevel: h.minLevel,
		group:    h.group,
		attrs:    append([]string(nil), h.attrs...),
	}
}
