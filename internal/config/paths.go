package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	appDirName         = "snapqr"
	configFileName     = "config.yaml"
	defaultStorageFile = "snapqr.db"
)

// Test seams.
var (
	configDirFn   = func() (string, error) { return filepath.Dir(DefaultPath()), nil }
	userHomeDirFn = os.UserHomeDir
)

// pathWarnings collects user-facing notes produced while resolving the
// default path, before any window exists to show them.
var pathWarnings struct {
	sync.Mutex
	pending []string
}

// ConsumeDefaultPathWarnings returns and clears the warnings DefaultPath has
// produced so far.
func ConsumeDefaultPathWarnings() []string {
	pathWarnings.Lock()
	defer pathWarnings.Unlock()
	out := pathWarnings.pending
	pathWarnings.pending = nil
	return out
}

func notePathWarning(message string) {
	pathWarnings.Lock()
	pathWarnings.pending = append(pathWarnings.pending, message)
	pathWarnings.Unlock()
}

// configBaseDir picks the first usable per-user directory.
func configBaseDir() string {
	for _, key := range []string{"LOCALAPPDATA", "APPDATA"} {
		if dir := strings.TrimSpace(os.Getenv(key)); dir != "" {
			return dir
		}
	}
	home, err := userHomeDirFn()
	if err == nil {
		return filepath.Join(home, ".config")
	}
	slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
	notePathWarning("Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings may not persist.")
	return os.TempDir()
}

// DefaultPath resolves <base>/snapqr/config.yaml where base is LOCALAPPDATA,
// then APPDATA, then ~/.config, then the temp directory.
func DefaultPath() string {
	return filepath.Join(configBaseDir(), appDirName, configFileName)
}

// StoragePath returns the settings store location for cfg loaded from
// configPath. Relative storage paths resolve against the config directory.
func StoragePath(cfg Config, configPath string) string {
	dir := filepath.Dir(configPath)
	switch p := strings.TrimSpace(cfg.Storage.Path); {
	case p == "":
		return filepath.Join(dir, defaultStorageFile)
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(dir, p)
	}
}

// writablePath makes path absolute and refuses anything outside the config
// directory.
func writablePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("config path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}
	dir, err := configDirFn()
	if err == nil {
		dir, err = filepath.Abs(dir)
	}
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !withinDir(abs, dir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", abs)
	}
	return abs, nil
}

// withinDir reports whether path is dir or below it. filepath.Rel yields an
// absolute result across Windows drives, which is treated as outside.
func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
