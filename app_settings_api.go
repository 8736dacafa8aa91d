package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"snapqr/internal/settings"
	"snapqr/internal/shortcut"
)

const (
	toastSaved       = "Settings saved"
	toastSaveFailed  = "Failed to save settings"
	toastSaveRunning = "Settings are already being saved"
)

// SettingsView is what the settings surface renders: the authoritative
// settings, the working bindings (which may show the recording
// placeholder) and the recorder state.
type SettingsView struct {
	Settings  settings.Settings  `json:"settings"`
	Working   settings.Shortcuts `json:"working"`
	Recording shortcut.State     `json:"recording"`
}

type toastEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OpenSettings re-reads the stored settings and resets the working copy.
func (a *App) OpenSettings() SettingsView {
	synchronizer, err := a.requireSynchronizer()
	if err != nil {
		slog.Warn("[WARN-SETTINGS] settings opened before startup", "error", err)
		return a.settingsView(settings.Default())
	}
	loaded, err := synchronizer.Load(a.workContext())
	if err != nil {
		slog.Warn("[WARN-SETTINGS] settings reload failed", "error", err)
	}
	a.recorder.Reset(loaded.Bindings())
	return a.settingsView(loaded)
}

// GetSettings returns the current view without reloading the store.
func (a *App) GetSettings() SettingsView {
	current := settings.Default()
	if synchronizer, err := a.requireSynchronizer(); err == nil {
		current = synchronizer.Current()
	}
	return a.settingsView(current)
}

// CloseSettings ends any recording without committing it.
func (a *App) CloseSettings() {
	a.CancelRecording()
}

// StartRecording begins capturing a chord for target ("fullscreen",
// "region" or "ocr").
func (a *App) StartRecording(target string) error {
	parsed, err := shortcut.ParseTarget(target)
	if err != nil {
		return err
	}
	if err := a.recorder.Start(parsed); err != nil {
		return err
	}
	a.emitWorkingChanged()
	return nil
}

// CancelRecording stops the active recording and reverts its working value.
func (a *App) CancelRecording() {
	if target, ok := a.recorder.Cancel(); ok {
		slog.Debug("[DEBUG-SETTINGS] recording cancelled", "target", target)
		a.emitWorkingChanged()
	}
}

// HandleKey feeds a key-down from the settings surface into the recorder.
// The result tells the frontend whether to suppress the key.
func (a *App) HandleKey(ev shortcut.KeyEvent) shortcut.KeyResult {
	result := a.recorder.HandleKey(ev)
	if result.Outcome == shortcut.OutcomeCommitted {
		a.emitWorkingChanged()
	}
	return result
}

// SaveSettings applies closeBehavior and the working bindings to the
// capture service, then persists them. The working copy survives a failure
// so the user can retry.
func (a *App) SaveSettings(closeBehavior string) error {
	synchronizer, err := a.requireSynchronizer()
	if err != nil {
		return err
	}
	a.CancelRecording()

	draft := synchronizer.Current().WithBindings(a.recorder.Working())
	if strings.TrimSpace(closeBehavior) != "" {
		draft.CloseBehavior = settings.CloseBehavior(closeBehavior)
	}

	saved, err := synchronizer.Save(a.workContext(), draft)
	if err != nil {
		message := toastSaveFailed
		if errors.Is(err, settings.ErrSaveInProgress) {
			message = toastSaveRunning
		}
		slog.Warn("[WARN-SETTINGS] save failed", "error", err)
		a.emitRuntimeEvent("toast:show", toastEvent{Kind: "error", Message: message + ": " + err.Error()})
		return err
	}

	a.recorder.Reset(saved.Bindings())
	a.emitRuntimeEvent("settings:updated", a.settingsView(saved))
	a.emitRuntimeEvent("toast:show", toastEvent{Kind: "success", Message: toastSaved})
	return nil
}

func (a *App) settingsView(current settings.Settings) SettingsView {
	working := settings.Settings{}.WithBindings(a.recorder.Working())
	return SettingsView{
		Settings:  current,
		Working:   working.Shortcuts,
		Recording: a.recorder.State(),
	}
}

func (a *App) emitWorkingChanged() {
	current := settings.Default()
	if a.synchronizer != nil {
		current = a.synchronizer.Current()
	}
	a.emitRuntimeEvent("settings:working-changed", a.settingsView(current))
}

// pushSettings runs on every capture service connection so the service
// sees the authoritative close behavior and bindings.
func (a *App) pushSettings(ctx context.Context) {
	synchronizer, err := a.requireSynchronizer()
	if err != nil {
		return
	}
	if err := synchronizer.Push(ctx); err != nil {
		slog.Warn("[WARN-SETTINGS] failed to push settings to capture service", "error", err)
	}
}

// memoryStore keeps the settings record in memory when the database cannot
// be opened, so the app still runs with unsaved settings.
type memoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string][]byte{}}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.records[key]
	return append([]byte(nil), value...), ok, nil
}

func (s *memoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append([]byte(nil), value...)
	return nil
}
