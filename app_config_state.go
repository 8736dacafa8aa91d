package main

import (
	"strings"

	"snapqr/internal/config"
)

// configSnapshot is the only read path for a.cfg.
func (a *App) configSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

// storeConfig is the only write path for a.cfg.
func (a *App) storeConfig(cfg config.Config) {
	cfg = config.Clone(cfg)
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

// queueStartupWarning holds a message until the frontend is ready to show
// it. Blank messages are dropped.
func (a *App) queueStartupWarning(message string) {
	if message = strings.TrimSpace(message); message == "" {
		return
	}
	a.warningsMu.Lock()
	defer a.warningsMu.Unlock()
	a.startupWarnings = append(a.startupWarnings, message)
}

// takeStartupWarnings drains the queue into one newline-joined message.
func (a *App) takeStartupWarnings() string {
	a.warningsMu.Lock()
	pending := a.startupWarnings
	a.startupWarnings = nil
	a.warningsMu.Unlock()
	return strings.Join(pending, "\n")
}

// flushStartupWarnings emits config:load-failed once for everything queued
// so far. Before startup the queue is left intact.
func (a *App) flushStartupWarnings() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	if message := a.takeStartupWarnings(); message != "" {
		a.emitRuntimeEventWithContext(ctx, "config:load-failed", map[string]string{"message": message})
	}
}
