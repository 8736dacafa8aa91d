package main

import (
	"log/slog"
	"time"

	"snapqr/internal/config"
)

// configUpdatedEvent is the config:updated payload. Version increases with
// every accepted change so the frontend can drop stale events.
type configUpdatedEvent struct {
	Config             config.Config `json:"config"`
	Version            uint64        `json:"version"`
	UpdatedAtUnixMilli int64         `json:"updated_at_unix_milli"`
}

// GetConfig returns the active configuration.
func (a *App) GetConfig() config.Config {
	return a.configSnapshot()
}

// GetConfigAndFlushWarnings is GetConfig for the first frontend load: it
// also delivers warnings queued during startup.
func (a *App) GetConfigAndFlushWarnings() config.Config {
	a.flushStartupWarnings()
	return a.configSnapshot()
}

// SaveConfig writes cfg to the config file and applies it. The event and
// the return path both carry the normalized config.
func (a *App) SaveConfig(cfg config.Config) error {
	a.cfgSaveMu.Lock()
	saved, err := config.Save(a.configPath, cfg)
	if err != nil {
		a.cfgSaveMu.Unlock()
		return err
	}
	event := a.commitConfigLocked(saved)
	a.cfgSaveMu.Unlock()

	a.announceConfig(event)
	return nil
}

// reloadConfig takes a config read by the file watcher. Reading back our
// own SaveConfig write produces an identical config and is ignored.
func (a *App) reloadConfig(cfg config.Config) {
	a.cfgSaveMu.Lock()
	previous := a.configSnapshot()
	if previous == cfg {
		a.cfgSaveMu.Unlock()
		return
	}
	event := a.commitConfigLocked(cfg)
	a.cfgSaveMu.Unlock()

	if previous.Backend != cfg.Backend || previous.Storage != cfg.Storage {
		slog.Info("[CONFIG] backend and storage changes take effect after restart")
	}
	a.announceConfig(event)
}

// commitConfigLocked stores cfg and stamps the event. Caller holds cfgSaveMu
// so versions follow store order.
func (a *App) commitConfigLocked(cfg config.Config) configUpdatedEvent {
	a.storeConfig(cfg)
	return configUpdatedEvent{
		Config:             config.Clone(cfg),
		Version:            a.configEventVersion.Add(1),
		UpdatedAtUnixMilli: time.Now().UnixMilli(),
	}
}

// announceConfig pushes the live sections (log level, capture timings) into
// the running components and notifies the frontend.
func (a *App) announceConfig(event configUpdatedEvent) {
	a.applyLogLevel(event.Config.Log.Level)
	if a.orchestrator != nil {
		a.orchestrator.SetTimings(event.Config.Capture.MinimizeDelay(), event.Config.Capture.SessionTimeout())
	}
	a.emitRuntimeEvent("config:updated", event)
}

func (a *App) applyLogLevel(raw string) {
	level, err := config.ParseLogLevel(raw)
	if err != nil {
		slog.Warn("[WARN-CONFIG] invalid log level, keeping current", "level", raw, "error", err)
		return
	}
	if previous := a.logLevel.Level(); previous != level {
		a.logLevel.Set(level)
		slog.Info("[CONFIG] log level changed", "from", previous, "to", level)
	}
}
