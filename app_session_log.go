package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"snapqr/internal/sessionlog"
)

const (
	sessionLogDir        = "session-logs"
	sessionLogMaxFiles   = 30
	sessionLogMaxEntries = 2000
	// sessionLogPingEvery throttles app:session-log-updated.
	sessionLogPingEvery = 50 * time.Millisecond
)

// sessionJournal holds the warn+ records of this run: a bounded in-memory
// ring for the diagnostics panel and an optional JSONL file.
//
// Nothing under mu may log through slog; the tee handler writes back into
// the journal and would deadlock.
type sessionJournal struct {
	mu       sync.RWMutex
	file     *os.File
	enc      *json.Encoder
	path     string
	ring     sessionLogRingBuffer
	seq      uint64
	lastPing time.Time
}

func newSessionJournal(capacity int) *sessionJournal {
	return &sessionJournal{ring: newSessionLogRingBuffer(capacity)}
}

// attach starts mirroring entries into f.
func (j *sessionJournal) attach(f *os.File) {
	j.mu.Lock()
	j.file, j.enc, j.path = f, json.NewEncoder(f), f.Name()
	j.mu.Unlock()
}

// append stamps entry with the next sequence number and stores it. It
// reports whether the frontend should be pinged and which file, if any,
// needs an fsync.
func (j *sessionJournal) append(entry SessionLogEntry, now time.Time) (ping bool, syncFile *os.File, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	entry.Seq = j.seq
	j.ring.push(entry)

	if j.enc != nil {
		// Encode terminates each record with a newline.
		if err = j.enc.Encode(entry); err == nil && entry.Level == "error" {
			syncFile = j.file
		}
	}
	if now.Sub(j.lastPing) >= sessionLogPingEvery {
		j.lastPing = now
		ping = true
	}
	return ping, syncFile, err
}

// detach stops file output and closes the file. The path is kept so the
// frontend can still point at the finished log.
func (j *sessionJournal) detach() error {
	j.mu.Lock()
	f := j.file
	j.file, j.enc = nil, nil
	j.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func (j *sessionJournal) snapshot() []SessionLogEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.ring.snapshot()
}

func (j *sessionJournal) filePath() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.path
}

// initSessionLog opens this run's JSONL file under session-logs next to the
// config file and prunes old runs. On failure only the in-memory log is
// kept.
func (a *App) initSessionLog() {
	dir := filepath.Join(filepath.Dir(a.configPath), sessionLogDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("[session-log] failed to create log directory", "dir", dir, "error", err)
		return
	}
	// The pid separates restarts within the same second.
	name := fmt.Sprintf("session-%s-%d.jsonl", time.Now().Format("20060102-150405"), os.Getpid())
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("[session-log] failed to open log file", "dir", dir, "error", err)
		return
	}
	a.journal.attach(f)
	pruneSessionLogs(dir, name, sessionLogMaxFiles)
	slog.Info("[session-log] initialized", "path", f.Name())
}

// pruneSessionLogs removes the oldest session files until at most keep
// remain. current is never removed.
func pruneSessionLogs(dir, current string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("[session-log] failed to read log directory for cleanup", "dir", dir, "error", err)
		return
	}
	var stale []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && name != current &&
			strings.HasPrefix(name, "session-") && strings.HasSuffix(name, ".jsonl") {
			stale = append(stale, name)
		}
	}
	// Timestamped names sort oldest first; the current file takes one slot.
	slices.Sort(stale)
	for len(stale) > keep-1 && len(stale) > 0 {
		target := filepath.Join(dir, stale[0])
		stale = stale[1:]
		if err := os.Remove(target); err != nil {
			slog.Warn("[session-log] failed to delete old log file", "path", target, "error", err)
		}
	}
}

// recordSessionLog receives records from the tee handler.
func (a *App) recordSessionLog(entry sessionlog.Entry) {
	a.writeSessionLogEntry(sessionLogEntryFrom(entry))
}

// writeSessionLogEntry stores entry and pings the frontend. The ping has no
// payload because the frontend re-reads GetSessionLog, so dropped pings lose
// nothing. Failures go to stderr since slog would recurse.
func (a *App) writeSessionLogEntry(entry SessionLogEntry) {
	ping, syncFile, err := a.journal.append(entry, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[session-log] failed to write log entry: %v\n", err)
	}
	if syncFile != nil {
		if err := syncFile.Sync(); err != nil && !isClosedFileError(err) {
			fmt.Fprintf(os.Stderr, "[session-log] failed to sync log file: %v\n", err)
		}
	}
	if !ping {
		return
	}
	if ctx := a.runtimeContext(); ctx != nil {
		runtimeEventsEmitFn(ctx, "app:session-log-updated", nil)
	}
}

// isClosedFileError matches a Sync that lost the race with closeSessionLog.
func isClosedFileError(err error) bool {
	if errors.Is(err, os.ErrClosed) {
		return true
	}
	return runtime.GOOS == "windows" && errors.Is(err, syscall.EINVAL)
}

func (a *App) closeSessionLog() {
	if err := a.journal.detach(); err != nil {
		fmt.Fprintf(os.Stderr, "[session-log] failed to close log file: %v\n", err)
	}
}

// GetSessionLog returns the in-memory warn+ entries, oldest first.
func (a *App) GetSessionLog() []SessionLogEntry {
	return a.journal.snapshot()
}

// GetSessionLogFilePath returns this run's JSONL file, or "" when no file
// could be opened.
func (a *App) GetSessionLogFilePath() string {
	return a.journal.filePath()
}
