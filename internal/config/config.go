// Package config loads, validates and persists the snapqr settings file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBackendURL = "ws://127.0.0.1:7878/ws"
	defaultLogLevel   = "info"

	maxMinimizeDelayMS = 5000
	maxTimeoutMS       = 10 * 60 * 1000
)

// BackendConfig locates the capture service. Pipe, when set, carries the
// connection over a named pipe (Windows) or unix socket.
type BackendConfig struct {
	URL              string `yaml:"url" json:"url"`
	Pipe             string `yaml:"pipe,omitempty" json:"pipe,omitempty"`
	DialTimeoutMS    int    `yaml:"dial_timeout_ms" json:"dial_timeout_ms"`
	CallTimeoutMS    int    `yaml:"call_timeout_ms" json:"call_timeout_ms"`
	ReconnectDelayMS int    `yaml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
}

// CaptureConfig holds capture workflow timing tolerances.
type CaptureConfig struct {
	MinimizeDelayMS  int `yaml:"minimize_delay_ms" json:"minimize_delay_ms"`
	SessionTimeoutMS int `yaml:"session_timeout_ms" json:"session_timeout_ms"`
}

// StorageConfig locates the settings store. An empty path keeps the store
// next to the config file.
type StorageConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the application configuration file. Every field is a value, so
// Config values compare with == and copy by assignment.
type Config struct {
	Backend BackendConfig `yaml:"backend" json:"backend"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`
	Storage StorageConfig `yaml:"storage,omitempty" json:"storage"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			URL:              DefaultBackendURL,
			DialTimeoutMS:    5000,
			CallTimeoutMS:    30000,
			ReconnectDelayMS: 2000,
		},
		Capture: CaptureConfig{
			MinimizeDelayMS:  300,
			SessionTimeoutMS: 120000,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func (b BackendConfig) DialTimeout() time.Duration    { return millis(b.DialTimeoutMS) }
func (b BackendConfig) CallTimeout() time.Duration    { return millis(b.CallTimeoutMS) }
func (b BackendConfig) ReconnectDelay() time.Duration { return millis(b.ReconnectDelayMS) }
func (c CaptureConfig) MinimizeDelay() time.Duration  { return millis(c.MinimizeDelayMS) }
func (c CaptureConfig) SessionTimeout() time.Duration { return millis(c.SessionTimeoutMS) }

// Clone returns an independent copy of src.
func Clone(src Config) Config {
	return src
}

// durationField binds one millisecond setting to its key, default and ceiling.
type durationField struct {
	key      string
	value    *int
	fallback int
	limit    int
}

func (c *Config) durationFields() []durationField {
	d := DefaultConfig()
	return []durationField{
		{"backend.dial_timeout_ms", &c.Backend.DialTimeoutMS, d.Backend.DialTimeoutMS, maxTimeoutMS},
		{"backend.call_timeout_ms", &c.Backend.CallTimeoutMS, d.Backend.CallTimeoutMS, maxTimeoutMS},
		{"backend.reconnect_delay_ms", &c.Backend.ReconnectDelayMS, d.Backend.ReconnectDelayMS, maxTimeoutMS},
		{"capture.minimize_delay_ms", &c.Capture.MinimizeDelayMS, d.Capture.MinimizeDelayMS, maxMinimizeDelayMS},
		{"capture.session_timeout_ms", &c.Capture.SessionTimeoutMS, d.Capture.SessionTimeoutMS, maxTimeoutMS},
	}
}

// normalize fills unset fields with defaults, trims strings and reports every
// value that cannot be used. Load and Save share it so a file written by Save
// always loads back unchanged.
func (c *Config) normalize() error {
	c.Backend.URL = strings.TrimSpace(c.Backend.URL)
	c.Backend.Pipe = strings.TrimSpace(c.Backend.Pipe)
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}

	var errs []error
	if err := validateBackendURL(c.Backend.URL); err != nil {
		errs = append(errs, err)
	}
	for _, f := range c.durationFields() {
		switch {
		case *f.value < 0:
			slog.Warn("[WARN-CONFIG] negative value replaced by default", "field", f.key, "value", *f.value, "default", f.fallback)
			*f.value = f.fallback
		case *f.value == 0:
			*f.value = f.fallback
		case *f.value > f.limit:
			errs = append(errs, fmt.Errorf("%s must be <= %d, got %d", f.key, f.limit, *f.value))
		}
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateBackendURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	switch {
	case u.Scheme != "ws" && u.Scheme != "wss":
		return fmt.Errorf("backend.url: scheme must be ws or wss, got %q", u.Scheme)
	case u.Host == "":
		return errors.New("backend.url: host required")
	}
	return nil
}
