package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"snapqr/internal/protocol"
)

// ErrSaveInProgress is returned when a save is requested while another save
// has not finished.
var ErrSaveInProgress = errors.New("settings save already in progress")

// Store is the persistent record store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Backend applies close behavior and shortcuts as one logical update. An
// implementation must leave the backend unchanged when it returns an error.
type Backend interface {
	ApplySettings(ctx context.Context, closeBehavior string, shortcuts protocol.ShortcutSet) error
}

// Synchronizer owns the authoritative settings copy and keeps the store
// and the backend consistent with it.
type Synchronizer struct {
	store   Store
	backend Backend

	// applyMu orders backend applies so a Push never lands after a newer
	// Save with an older copy.
	applyMu sync.Mutex

	mu      sync.Mutex
	current Settings
	saving  bool
}

// NewSynchronizer returns a synchronizer holding defaults until Load runs.
func NewSynchronizer(store Store, backend Backend) *Synchronizer {
	return &Synchronizer{
		store:   store,
		backend: backend,
		current: Default(),
	}
}

// Current returns the authoritative settings.
func (s *Synchronizer) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Load reads the persisted record and replaces the authoritative copy with
// its defensive merge. A read failure keeps the authoritative copy, which
// is Default() before the first successful load, and is returned for
// logging; the returned settings are usable either way.
func (s *Synchronizer) Load(ctx context.Context) (Settings, error) {
	raw, found, err := s.store.Get(ctx, StorageKey)
	if err != nil {
		slog.Warn("[WARN-SETTINGS] failed to read stored settings, keeping current", "error", err)
		return s.Current(), fmt.Errorf("load settings: %w", err)
	}
	loaded := Default()
	if found {
		loaded = Decode(raw)
	} else {
		slog.Debug("[DEBUG-SETTINGS] no stored settings, using defaults")
	}
	s.setCurrent(loaded)
	return loaded, nil
}

// Push sends the authoritative settings to the backend so its view matches.
func (s *Synchronizer) Push(ctx context.Context) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	current := s.Current()
	if err := s.backend.ApplySettings(ctx, string(current.CloseBehavior), current.BackendShortcuts()); err != nil {
		return fmt.Errorf("push settings: %w", err)
	}
	slog.Debug("[DEBUG-SETTINGS] settings pushed to backend",
		"closeBehavior", current.CloseBehavior,
		"fullscreen", current.Shortcuts.Fullscreen,
		"region", current.Shortcuts.Region,
		"ocr", current.Shortcuts.OCR,
	)
	return nil
}

// Save validates draft, applies it to the backend, then persists it. The
// authoritative copy changes only when both steps succeed. When persisting
// fails the previous settings are re-applied to the backend.
func (s *Synchronizer) Save(ctx context.Context, draft Settings) (Settings, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return Settings{}, ErrSaveInProgress
	}
	s.saving = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	previous := s.Current()

	candidate, err := draft.Validate()
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	raw, err := Encode(candidate)
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: encode: %w", err)
	}

	if err := s.backend.ApplySettings(ctx, string(candidate.CloseBehavior), candidate.BackendShortcuts()); err != nil {
		return Settings{}, fmt.Errorf("save settings: apply: %w", err)
	}

	if err := s.store.Put(ctx, StorageKey, raw); err != nil {
		persistErr := fmt.Errorf("save settings: persist: %w", err)
		if rbErr := s.backend.ApplySettings(ctx, string(previous.CloseBehavior), previous.BackendShortcuts()); rbErr != nil {
			slog.Error("[ERROR-SETTINGS] rollback after persist failure failed", "error", rbErr)
			return Settings{}, errors.Join(persistErr, fmt.Errorf("rollback: %w", rbErr))
		}
		return Settings{}, persistErr
	}

	s.setCurrent(candidate)
	slog.Info("[SETTINGS] saved", "closeBehavior", candidate.CloseBehavior)
	return candidate, nil
}

func (s *Synchronizer) setCurrent(next Settings) {
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
}
