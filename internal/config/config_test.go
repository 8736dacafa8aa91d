package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"snapqr/internal/testutil"
)

func newConfigPathForSaveTest(t *testing.T, elems ...string) string {
	t.Helper()
	localAppData := t.TempDir()
	t.Setenv("LOCALAPPDATA", localAppData)
	t.Setenv("APPDATA", "")

	defaultPath := DefaultPath()

	return filepath.Join(filepath.Dir(defaultPath), filepath.Join(elems...))
}

func writeConfigFile(t *testing.T, path string, raw string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWithinDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "config")

	tests := []struct {
		name string
		path string
		dir  string
		want bool
	}{
		{name: "dir itself", path: root, dir: root, want: true},
		{name: "nested file", path: filepath.Join(root, "sub", "config.yaml"), dir: root, want: true},
		{name: "dot dot escape", path: filepath.Join(root, "..", "outside.yaml"), dir: root, want: false},
		{name: "sibling", path: root + "-other", dir: root, want: false},
		{name: "dotted name stays inside", path: filepath.Join(root, "..config.yaml"), dir: root, want: true},
	}
	if runtime.GOOS == "windows" {
		tests = append(tests, struct {
			name string
			path string
			dir  string
			want bool
		}{name: "other drive", path: `D:\outside\config.yaml`, dir: `C:\inside`, want: false})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinDir(tt.path, tt.dir); got != tt.want {
				t.Fatalf("withinDir(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
			}
		})
	}
}

func TestSaveZeroConfigWritesDefaults(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")
	saved, err := Save(path, Config{})
	if err != nil {
		t.Fatalf("Save(Config{}) error = %v", err)
	}
	if saved != DefaultConfig() {
		t.Fatalf("Save(Config{}) = %+v, want defaults", saved)
	}
}

func TestDefaultPath(t *testing.T) {
	const local, roaming = `C:\Users\tester\AppData\Local`, `C:\Users\tester\AppData\Roaming`
	tests := []struct {
		name         string
		localAppData string
		appData      string
		want         string
	}{
		{name: "local app data wins", localAppData: local, appData: roaming, want: filepath.Join(local, "snapqr", "config.yaml")},
		{name: "roaming fallback", appData: roaming, want: filepath.Join(roaming, "snapqr", "config.yaml")},
		{name: "blank values ignored", localAppData: "  ", appData: roaming, want: filepath.Join(roaming, "snapqr", "config.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOCALAPPDATA", tt.localAppData)
			t.Setenv("APPDATA", tt.appData)
			if got := DefaultPath(); got != tt.want {
				t.Fatalf("DefaultPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultPathUsesHomeConfigDir(t *testing.T) {
	orig := userHomeDirFn
	t.Cleanup(func() { userHomeDirFn = orig })
	userHomeDirFn = func() (string, error) { return "/home/tester", nil }
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", "")

	want := filepath.Join("/home/tester", ".config", "snapqr", "config.yaml")
	if got := DefaultPath(); got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
	if warnings := ConsumeDefaultPathWarnings(); warnings != nil {
		t.Fatalf("ConsumeDefaultPathWarnings() = %v, want nil", warnings)
	}
}

func TestDefaultPathFallsBackToTempDirWhenHomeDirUnavailable(t *testing.T) {
	orig := userHomeDirFn
	t.Cleanup(func() { userHomeDirFn = orig })
	ConsumeDefaultPathWarnings()
	t.Cleanup(func() { ConsumeDefaultPathWarnings() })
	logs := testutil.CaptureLogBuffer(t, slog.LevelWarn)

	userHomeDirFn = func() (string, error) {
		return "", errors.New("no home")
	}
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", "")

	want := filepath.Join(os.TempDir(), "snapqr", "config.yaml")
	if got := DefaultPath(); got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
	if !logs.Contains("using temp dir as config path fallback") {
		t.Fatalf("log output = %q, want temp-dir fallback warning", logs.String())
	}
	warnings := ConsumeDefaultPathWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "Config path fallback") {
		t.Fatalf("ConsumeDefaultPathWarnings() = %v, want one fallback message", warnings)
	}
	if again := ConsumeDefaultPathWarnings(); again != nil {
		t.Fatalf("second ConsumeDefaultPathWarnings() = %v, want nil", again)
	}
}

func TestLoadMissingAndEmptyFileYieldDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("Load(missing) = %+v, want defaults", cfg)
	}

	empty := filepath.Join(dir, "empty.yaml")
	writeConfigFile(t, empty, "  \n")
	cfg, err = Load(empty)
	if err != nil {
		t.Fatalf("Load(empty) error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("Load(empty) = %+v, want defaults", cfg)
	}

	if _, err := Load(""); err == nil {
		t.Fatal("Load(\"\") expected error")
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "backend:\n  url: ws://localhost:9000/ws\n  pipe: ' snapqr-capture '\nlog:\n  level: DEBUG\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.URL != "ws://localhost:9000/ws" {
		t.Fatalf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.Pipe != "snapqr-capture" {
		t.Fatalf("Backend.Pipe = %q, want trimmed", cfg.Backend.Pipe)
	}
	if cfg.Backend.CallTimeout() != 30*time.Second || cfg.Backend.DialTimeout() != 5*time.Second {
		t.Fatalf("timeouts = (%v, %v), want defaults", cfg.Backend.CallTimeout(), cfg.Backend.DialTimeout())
	}
	if cfg.Capture.MinimizeDelay() != 300*time.Millisecond || cfg.Capture.SessionTimeout() != 2*time.Minute {
		t.Fatalf("capture timings = (%v, %v), want defaults", cfg.Capture.MinimizeDelay(), cfg.Capture.SessionTimeout())
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "bad scheme", raw: "backend:\n  url: http://localhost/ws\n", wantErr: "scheme"},
		{name: "missing host", raw: "backend:\n  url: 'ws:///ws'\n", wantErr: "host"},
		{name: "minimize delay too large", raw: "capture:\n  minimize_delay_ms: 60000\n", wantErr: "capture.minimize_delay_ms"},
		{name: "call timeout too large", raw: "backend:\n  call_timeout_ms: 999999999\n", wantErr: "backend.call_timeout_ms"},
		{name: "unknown level", raw: "log:\n  level: verbose\n", wantErr: "log.level"},
		{name: "malformed yaml", raw: "backend: [\n", wantErr: "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeConfigFile(t, path, tt.raw)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNegativeValuesFallBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "capture:\n  minimize_delay_ms: -5\n  session_timeout_ms: -1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Capture != DefaultConfig().Capture {
		t.Fatalf("Capture = %+v, want defaults", cfg.Capture)
	}
}

func TestSave(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")
	cfg := DefaultConfig()
	cfg.Backend.URL = " ws://127.0.0.1:9999/ws "
	cfg.Log.Level = "Warn"

	saved, err := Save(path, cfg)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Backend.URL != "ws://127.0.0.1:9999/ws" || saved.Log.Level != "warn" {
		t.Fatalf("Save() normalized = %+v", saved)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != saved {
		t.Fatalf("Load() = %+v, want %+v", loaded, saved)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read config dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".config.yaml.tmp.") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")
	cfg := DefaultConfig()
	cfg.Backend.URL = "tcp://nowhere"

	if _, err := Save(path, cfg); err == nil {
		t.Fatal("Save() expected validation error")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid config was written, stat error = %v", err)
	}
}

func TestSaveRejectsPathOutsideConfigDir(t *testing.T) {
	_ = newConfigPathForSaveTest(t, "config.yaml")
	outside := filepath.Join(t.TempDir(), "config.yaml")

	_, err := Save(outside, DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "outside config directory") {
		t.Fatalf("Save() error = %v, want outside-directory error", err)
	}
}

func TestWritablePathFailsWhenConfigDirUnresolved(t *testing.T) {
	orig := configDirFn
	t.Cleanup(func() { configDirFn = orig })
	configDirFn = func() (string, error) {
		return "", errors.New("no config dir")
	}

	_, err := writablePath(filepath.Join(t.TempDir(), "config.yaml"))
	if err == nil || !strings.Contains(err.Error(), "resolve config dir") {
		t.Fatalf("writablePath() error = %v, want config dir error", err)
	}
	if _, err := writablePath("   "); err == nil {
		t.Fatal("writablePath(blank) expected error")
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "# "+strings.Repeat("a", maxConfigFileBytes))

	cfg, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("Load() error = %v, want size limit error", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("Load() = %+v, want defaults alongside the error", cfg)
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	for _, content := range []string{"first\n", "second\n"} {
		if err := writeFileAtomic(path, []byte(content)); err != nil {
			t.Fatalf("writeFileAtomic() error = %v", err)
		}
		raw, err := os.ReadFile(path)
		if err != nil || string(raw) != content {
			t.Fatalf("ReadFile() = %q, %v, want %q", raw, err, content)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil || len(entries) != 1 {
		t.Fatalf("dir entries = %v, %v, want only config.yaml", entries, err)
	}
}

func TestEnsureFileCreatesConfigFile(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")

	cfg, err := EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("EnsureFile() = %+v, want defaults", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("config file permissions = %o, want owner-only", info.Mode().Perm())
	}
}

func TestEnsureFileUsesExistingConfigFile(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")
	writeConfigFile(t, path, "log:\n  level: error\n")

	cfg, err := EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("cfg.Log.Level = %q, want error", cfg.Log.Level)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(raw) != "log:\n  level: error\n" {
		t.Fatalf("existing config was unexpectedly replaced: %q", string(raw))
	}
}

func TestStoragePath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "snapqr", "config.yaml")
	dir := filepath.Dir(configPath)
	abs := filepath.Join(t.TempDir(), "elsewhere.db")

	tests := []struct {
		name    string
		storage string
		want    string
	}{
		{name: "default", storage: "", want: filepath.Join(dir, "snapqr.db")},
		{name: "relative", storage: "data/settings.db", want: filepath.Join(dir, "data", "settings.db")},
		{name: "absolute", storage: abs, want: abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.Path = tt.storage
			if got := StoragePath(cfg, configPath); got != tt.want {
				t.Fatalf("StoragePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: "", want: slog.LevelInfo},
		{raw: " INFO ", want: slog.LevelInfo},
		{raw: "warning", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "trace", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseLogLevel(%q) = (%v, %v), want (%v, err=%v)", tt.raw, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, EnvPath(configPath), "SNAPQR_BACKEND_URL=ws://dotenv:1/ws\nSNAPQR_LOG_LEVEL=debug\nSNAPQR_BACKEND_PIPE=from-dotenv\n")
	t.Setenv(EnvBackendURL, "")
	t.Setenv(EnvBackendPipe, "")
	t.Setenv(EnvLogLevel, "error")

	cfg := DefaultConfig()
	applied := ApplyEnvOverrides(&cfg, configPath)

	if cfg.Backend.URL != "ws://dotenv:1/ws" {
		t.Fatalf("Backend.URL = %q, want .env value", cfg.Backend.URL)
	}
	if cfg.Backend.Pipe != "from-dotenv" {
		t.Fatalf("Backend.Pipe = %q, want .env value", cfg.Backend.Pipe)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("Log.Level = %q, want process env value", cfg.Log.Level)
	}
	if len(applied) != 3 {
		t.Fatalf("applied = %v, want 3 overrides", applied)
	}
}

func TestApplyEnvOverridesIgnoresInvalidValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvBackendURL, "http://wrong")
	t.Setenv(EnvBackendPipe, "")
	t.Setenv(EnvLogLevel, "loud")

	cfg := DefaultConfig()
	if applied := ApplyEnvOverrides(&cfg, configPath); len(applied) != 0 {
		t.Fatalf("applied = %v, want none", applied)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "log:\n  level: info\n")
	t.Setenv(EnvLogLevel, "")

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})

	writeConfigFile(t, path, "log:\n  level: debug\n")

	select {
	case cfg := <-changes:
		if cfg.Log.Level != "debug" {
			t.Fatalf("reloaded Log.Level = %q, want debug", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestNewWatcherRequiresCallback(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "config.yaml"), nil); err == nil {
		t.Fatal("NewWatcher(nil) expected error")
	}
}
