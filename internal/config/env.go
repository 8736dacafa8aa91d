package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvBackendURL  = "SNAPQR_BACKEND_URL"
	EnvBackendPipe = "SNAPQR_BACKEND_PIPE"
	EnvLogLevel    = "SNAPQR_LOG_LEVEL"

	envFileName = ".env"
)

// EnvPath returns the .env file read next to configPath.
func EnvPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), envFileName)
}

// ApplyEnvOverrides overlays environment overrides onto cfg. Values from the
// process environment win over the .env file next to configPath.
// Returns the names of the overridden variables.
func ApplyEnvOverrides(cfg *Config, configPath string) []string {
	dotenv := readDotenv(EnvPath(configPath))

	lookup := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dotenv[key])
	}

	var applied []string
	if v := lookup(EnvBackendURL); v != "" {
		if err := validateBackendURL(v); err != nil {
			slog.Warn("[WARN-CONFIG] ignoring invalid env override", "key", EnvBackendURL, "error", err)
		} else {
			cfg.Backend.URL = v
			applied = append(applied, EnvBackendURL)
		}
	}
	if v := lookup(EnvBackendPipe); v != "" {
		cfg.Backend.Pipe = v
		applied = append(applied, EnvBackendPipe)
	}
	if v := lookup(EnvLogLevel); v != "" {
		if _, err := ParseLogLevel(v); err != nil {
			slog.Warn("[WARN-CONFIG] ignoring invalid env override", "key", EnvLogLevel, "error", err)
		} else {
			cfg.Log.Level = strings.ToLower(v)
			applied = append(applied, EnvLogLevel)
		}
	}
	return applied
}

func readDotenv(path string) map[string]string {
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("[WARN-CONFIG] failed to read .env file", "path", path, "error", err)
		}
		return map[string]string{}
	}
	return values
}
