package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 150 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
//
// The parent directory is watched rather than the file itself because
// Save replaces the file by rename, which drops file-level watches.
type Watcher struct {
	path     string
	onChange func(Config)
	debounce time.Duration

	fs        *fsnotify.Watcher
	closeOnce sync.Once
}

// NewWatcher starts watching the directory of path. onChange receives the
// reloaded config with env overrides applied. Invalid files are logged and
// skipped.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("config watcher: onChange is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: defaultWatchDebounce,
		fs:       fsw,
	}, nil
}

// Run dispatches change notifications until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	envPath := filepath.Clean(EnvPath(w.path))
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if name != w.path && name != envPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Editors and atomic saves emit bursts; coalesce them.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] reload skipped", "path", w.path, "error", err)
		return
	}
	ApplyEnvOverrides(&cfg, w.path)
	slog.Debug("[DEBUG-CONFIG] config reloaded", "path", w.path)
	w.onChange(cfg)
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
	})
	return err
}
