package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"testing"
	"time"

	"snapqr/internal/sessionlog"
)

func newSessionLogTestApp(t *testing.T) *App {
	t.Helper()
	app := NewApp()
	app.configPath = filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(app.closeSessionLog)
	return app
}

func TestInitSessionLogCreatesFileNextToConfig(t *testing.T) {
	installRuntimeRecorder(t)
	app := newSessionLogTestApp(t)

	app.initSessionLog()

	path := app.GetSessionLogFilePath()
	if filepath.Dir(path) != filepath.Join(filepath.Dir(app.configPath), sessionLogDir) {
		t.Fatalf("session log path = %q, want inside %s", path, sessionLogDir)
	}
	pattern := regexp.MustCompile(`^session-\d{8}-\d{6}-` + strconv.Itoa(os.Getpid()) + `\.jsonl$`)
	if !pattern.MatchString(filepath.Base(path)) {
		t.Fatalf("session log file = %q, want timestamp and pid", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(%q) error = %v", path, err)
	}
}

func TestInitSessionLogFailureKeepsMemoryLog(t *testing.T) {
	installRuntimeRecorder(t)
	app := NewApp()
	dir := t.TempDir()
	// A file where the directory should be makes MkdirAll fail.
	blocker := filepath.Join(dir, sessionLogDir)
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	app.configPath = filepath.Join(dir, "config.yaml")

	app.initSessionLog()
	app.writeSessionLogEntry(SessionLogEntry{Level: "warn", Message: "still recorded"})

	if got := app.GetSessionLogFilePath(); got != "" {
		t.Fatalf("GetSessionLogFilePath() = %q, want empty", got)
	}
	if got := app.GetSessionLog(); len(got) != 1 || got[0].Message != "still recorded" {
		t.Fatalf("GetSessionLog() = %+v, want the in-memory entry", got)
	}
}

func TestWriteSessionLogEntryAppendsJSONL(t *testing.T) {
	installRuntimeRecorder(t)
	app := newSessionLogTestApp(t)
	app.initSessionLog()

	app.writeSessionLogEntry(SessionLogEntry{Timestamp: "20261019120000", Level: "warn", Message: "first", Source: "capture"})
	app.writeSessionLogEntry(SessionLogEntry{Timestamp: "20261019120001", Level: "error", Message: "second", Detail: "error=boom"})
	app.closeSessionLog()

	f, err := os.Open(app.GetSessionLogFilePath())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var got []SessionLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry SessionLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		got = append(got, entry)
	}
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2", len(got))
	}
	if got[0].Seq != 1 || got[0].Source != "capture" || got[1].Seq != 2 || got[1].Detail != "error=boom" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestWriteSessionLogEntryAfterCloseStaysInMemory(t *testing.T) {
	installRuntimeRecorder(t)
	app := newSessionLogTestApp(t)
	app.initSessionLog()
	app.closeSessionLog()

	app.writeSessionLogEntry(SessionLogEntry{Level: "error", Message: "late"})

	if got := app.GetSessionLog(); len(got) != 1 || got[0].Seq != 1 {
		t.Fatalf("GetSessionLog() = %+v, want one entry with seq 1", got)
	}
}

func TestSessionLogRingBufferKeepsNewest(t *testing.T) {
	rb := newSessionLogRingBuffer(3)
	for i := 1; i <= 5; i++ {
		rb.push(SessionLogEntry{Seq: uint64(i)})
	}
	got := rb.snapshot()
	seqs := make([]uint64, 0, len(got))
	for _, entry := range got {
		seqs = append(seqs, entry.Seq)
	}
	if !slices.Equal(seqs, []uint64{3, 4, 5}) {
		t.Fatalf("snapshot seqs = %v, want [3 4 5]", seqs)
	}
	if rb.len() != 3 {
		t.Fatalf("len() = %d, want 3", rb.len())
	}
}

func TestNewSessionLogRingBufferClampsCapacity(t *testing.T) {
	for _, capacity := range []int{0, -5} {
		rb := newSessionLogRingBuffer(capacity)
		rb.push(SessionLogEntry{Seq: 1})
		rb.push(SessionLogEntry{Seq: 2})
		got := rb.snapshot()
		if len(got) != 1 || got[0].Seq != 2 {
			t.Fatalf("capacity %d: snapshot = %+v, want only seq 2", capacity, got)
		}
	}
}

func TestGetSessionLogReturnsIndependentCopy(t *testing.T) {
	installRuntimeRecorder(t)
	app := NewApp()
	if got := app.GetSessionLog(); got == nil || len(got) != 0 {
		t.Fatalf("GetSessionLog() = %#v, want empty non-nil slice", got)
	}

	app.writeSessionLogEntry(SessionLogEntry{Level: "warn", Message: "original"})
	first := app.GetSessionLog()
	first[0].Message = "mutated"
	if got := app.GetSessionLog()[0].Message; got != "original" {
		t.Fatalf("GetSessionLog()[0].Message = %q, want original", got)
	}
}

func TestPruneSessionLogsKeepsNewestAndCurrent(t *testing.T) {
	dir := t.TempDir()
	var names []string
	for i := range 5 {
		name := fmt.Sprintf("session-2026101%d-120000-1.jsonl", i)
		names = append(names, name)
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	// The oldest name is the current file and must survive.
	pruneSessionLogs(dir, names[0], 2)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var remaining []string
	for _, entry := range entries {
		remaining = append(remaining, entry.Name())
	}
	want := []string{"notes.txt", names[0], names[4]}
	slices.Sort(want)
	if !slices.Equal(remaining, want) {
		t.Fatalf("remaining = %v, want %v", remaining, want)
	}
}

func TestSourceFromTag(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{message: "[WARN-CAPTURE] scan failed", want: "capture"},
		{message: "[DEBUG-IPC] dropped", want: "ipc"},
		{message: "[session-log] initialized", want: "session-log"},
		{message: "[EVENT] dropped", want: "event"},
		{message: "[] empty", want: ""},
		{message: "plain message", want: ""},
		{message: "[unterminated", want: ""},
	}
	for _, tt := range tests {
		if got := sourceFromTag(tt.message); got != tt.want {
			t.Fatalf("sourceFromTag(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestRecordSessionLogConvertsEntry(t *testing.T) {
	installRuntimeRecorder(t)
	app := NewApp()
	at := time.Date(2026, 10, 19, 8, 30, 15, 0, time.Local)

	app.recordSessionLog(sessionlog.Entry{
		Time:    at,
		Level:   slog.LevelError,
		Message: "[WARN-SETTINGS] save failed",
		Detail:  "error=denied",
	})
	app.recordSessionLog(sessionlog.Entry{
		Time:    at,
		Level:   slog.LevelWarn,
		Message: "reconnecting",
		Group:   "backend",
	})

	got := app.GetSessionLog()
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	want := SessionLogEntry{Seq: 1, Timestamp: "20261019083015", Level: "error", Message: "[WARN-SETTINGS] save failed", Source: "settings", Detail: "error=denied"}
	if got[0] != want {
		t.Fatalf("entry = %+v, want %+v", got[0], want)
	}
	if got[1].Source != "backend" || got[1].Level != "warn" || got[1].Seq != 2 {
		t.Fatalf("grouped entry = %+v", got[1])
	}
}

func TestSessionLogLevelName(t *testing.T) {
	tests := map[slog.Level]string{
		slog.LevelError + 4: "error",
		slog.LevelError:     "error",
		slog.LevelWarn:      "warn",
		slog.LevelInfo:      "info",
		slog.LevelDebug:     "debug",
	}
	for level, want := range tests {
		if got := sessionLogLevelName(level); got != want {
			t.Fatalf("sessionLogLevelName(%v) = %q, want %q", level, got, want)
		}
	}
}

func TestWriteSessionLogEntryPingsFrontendThrottled(t *testing.T) {
	rec := installRuntimeRecorder(t)
	app := NewApp()
	app.setRuntimeContext(context.Background())

	for range 5 {
		app.writeSessionLogEntry(SessionLogEntry{Level: "warn", Message: "burst"})
	}

	pings := rec.eventsNamed("app:session-log-updated")
	if len(pings) != 1 {
		t.Fatalf("app:session-log-updated events = %d, want 1 for a burst", len(pings))
	}
	if pings[0] != nil {
		t.Fatalf("ping payload = %#v, want nil", pings[0])
	}
	if got := app.GetSessionLog(); len(got) != 5 || got[4].Seq != 5 {
		t.Fatalf("GetSessionLog() = %+v, want five entries ending at seq 5", got)
	}
}

func TestWriteSessionLogEntryWithoutContextDoesNotPing(t *testing.T) {
	rec := installRuntimeRecorder(t)
	app := NewApp()
	app.writeSessionLogEntry(SessionLogEntry{Level: "warn", Message: "early"})
	if got := len(rec.eventsNamed("app:session-log-updated")); got != 0 {
		t.Fatalf("app:session-log-updated events = %d, want 0 before startup", got)
	}
}

func TestNewAppLoggerTeesWarningsIntoSessionLog(t *testing.T) {
	installRuntimeRecorder(t)
	app := NewApp()
	logger := newAppLogger(app)

	logger.Info("[CAPTURE] started")
	logger.Warn("[WARN-CAPTURE] scan failed", "error", "denied")

	got := app.GetSessionLog()
	if len(got) != 1 || got[0].Source != "capture" || got[0].Level != "warn" {
		t.Fatalf("GetSessionLog() = %+v, want only the warning", got)
	}
}
