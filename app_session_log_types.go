package main

import (
	"log/slog"
	"strings"

	"snapqr/internal/sessionlog"
)

const sessionLogTimestampLayout = "20060102150405"

// SessionLogEntry is one warn+ record shown in the diagnostics panel and
// appended to the JSONL file. Seq is assigned at write time and never
// resets, so the frontend can deduplicate across snapshots.
type SessionLogEntry struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"msg"`
	Source    string `json:"source,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// sessionLogEntryFrom converts a teed slog record. Source is the slog
// group, or the bracketed tag at the start of the message ("[WARN-CAPTURE]"
// becomes "capture").
func sessionLogEntryFrom(entry sessionlog.Entry) SessionLogEntry {
	source := entry.Group
	if source == "" {
		source = sourceFromTag(entry.Message)
	}
	return SessionLogEntry{
		Timestamp: entry.Time.Format(sessionLogTimestampLayout),
		Level:     sessionLogLevelName(entry.Level),
		Message:   entry.Message,
		Source:    source,
		Detail:    entry.Detail,
	}
}

func sessionLogLevelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

func sourceFromTag(message string) string {
	if !strings.HasPrefix(message, "[") {
		return ""
	}
	end := strings.IndexByte(message, ']')
	if end <= 1 {
		return ""
	}
	tag := strings.ToLower(message[1:end])
	for _, prefix := range []string{"debug-", "warn-", "error-"} {
		tag = strings.TrimPrefix(tag, prefix)
	}
	return tag
}

// sessionLogRingBuffer keeps the newest entries, overwriting the oldest
// once full. Not safe for concurrent use; sessionJournal guards it.
type sessionLogRingBuffer struct {
	buf   []SessionLogEntry
	head  int // oldest entry
	count int
}

// newSessionLogRingBuffer clamps capacity to at least one entry.
func newSessionLogRingBuffer(capacity int) sessionLogRingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return sessionLogRingBuffer{buf: make([]SessionLogEntry, capacity)}
}

func (rb *sessionLogRingBuffer) push(entry SessionLogEntry) {
	bufCap := len(rb.buf)
	if bufCap == 0 {
		return
	}
	if rb.count < bufCap {
		rb.buf[(rb.head+rb.count)%bufCap] = entry
		rb.count++
		return
	}
	rb.buf[rb.head] = entry
	rb.head = (rb.head + 1) % bufCap
}

// snapshot returns the entries oldest first in a new slice.
func (rb *sessionLogRingBuffer) snapshot() []SessionLogEntry {
	if rb.count == 0 {
		return []SessionLogEntry{}
	}
	out := make([]SessionLogEntry, rb.count)
	bufCap := len(rb.buf)
	first := min(bufCap-rb.head, rb.count)
	copy(out, rb.buf[rb.head:rb.head+first])
	if rest := rb.count - first; rest > 0 {
		copy(out[first:], rb.buf[:rest])
	}
	return out
}

func (rb *sessionLogRingBuffer) len() int {
	return rb.count
}
