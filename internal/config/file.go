package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes = 1 << 20

	renameAttempts = 10
	renameBackoff  = 10 * time.Millisecond
)

// Load reads the config file. A missing or blank file yields defaults; a
// malformed one yields defaults plus the parse error.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), errors.New("config path required")
	}
	raw, err := readCapped(path, maxConfigFileBytes)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return DefaultConfig(), nil
	case err != nil:
		return DefaultConfig(), err
	case strings.TrimSpace(string(raw)) == "":
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	err = cfg.normalize()
	return cfg, err
}

// EnsureFile loads path and writes the defaults there when the file does not
// exist yet.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	return Save(path, cfg)
}

// Save normalizes cfg, writes it atomically and returns what was written.
func Save(path string, cfg Config) (Config, error) {
	target, err := writablePath(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.normalize(); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := writeFileAtomic(target, raw); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", target)
	return cfg, nil
}

// writeFileAtomic stages data in a sibling temp file and renames it over
// path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmp.Name(), "error", err)
		}
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"chmod", func() error { return tmp.Chmod(0o600) }},
		{"write", func() error { _, err := tmp.Write(data); return err }},
		{"sync", tmp.Sync},
		{"close", tmp.Close},
		{"rename", func() error { return renameWithRetry(tmp.Name(), path) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	committed = true
	return nil
}

// renameWithRetry retries only on Windows, where scanners and indexers hold
// short-lived locks on freshly written files.
func renameWithRetry(from, to string) error {
	err := os.Rename(from, to)
	if runtime.GOOS != "windows" {
		return err
	}
	for attempt := 1; err != nil && attempt < renameAttempts; attempt++ {
		time.Sleep(time.Duration(attempt) * renameBackoff)
		err = os.Rename(from, to)
	}
	return err
}

func readCapped(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("config file exceeds %d bytes", limit)
	}
	return raw, nil
}
