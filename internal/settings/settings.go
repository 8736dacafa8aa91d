package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"snapqr/internal/protocol"
	"snapqr/internal/shortcut"
)

// StorageKey is the fixed record name of the persisted settings.
const StorageKey = "appSettings"

// CloseBehavior decides what closing the main window does.
type CloseBehavior string

const (
	CloseExit CloseBehavior = "exit"
	CloseTray CloseBehavior = "tray"
)

// ParseCloseBehavior validates a close behavior value.
func ParseCloseBehavior(value string) (CloseBehavior, error) {
	switch b := CloseBehavior(strings.ToLower(strings.TrimSpace(value))); b {
	case CloseExit, CloseTray:
		return b, nil
	default:
		return "", fmt.Errorf("unknown close behavior %q", value)
	}
}

// Shortcuts holds one display chord per workflow.
type Shortcuts struct {
	Fullscreen string `json:"fullscreen"`
	Region     string `json:"region"`
	OCR        string `json:"ocr"`
}

// Settings is the user-editable application state. Values returned by this
// package are always fully populated.
type Settings struct {
	CloseBehavior CloseBehavior `json:"closeBehavior"`
	Shortcuts     Shortcuts     `json:"shortcuts"`
}

// Default returns the first-run settings.
func Default() Settings {
	return Settings{
		CloseBehavior: CloseExit,
		Shortcuts: Shortcuts{
			Fullscreen: "Ctrl + Shift + S",
			Region:     "Ctrl + Shift + A",
			OCR:        "Ctrl + Shift + D",
		},
	}
}

// Shortcut returns the binding for target.
func (s Settings) Shortcut(target shortcut.Target) string {
	switch target {
	case shortcut.TargetFullscreen:
		return s.Shortcuts.Fullscreen
	case shortcut.TargetRegion:
		return s.Shortcuts.Region
	case shortcut.TargetOCR:
		return s.Shortcuts.OCR
	default:
		return ""
	}
}

// WithShortcut returns a copy of s with target bound to value.
func (s Settings) WithShortcut(target shortcut.Target, value string) Settings {
	switch target {
	case shortcut.TargetFullscreen:
		s.Shortcuts.Fullscreen = value
	case shortcut.TargetRegion:
		s.Shortcuts.Region = value
	case shortcut.TargetOCR:
		s.Shortcuts.OCR = value
	}
	return s
}

// Bindings returns the shortcuts keyed by target.
func (s Settings) Bindings() map[shortcut.Target]string {
	out := make(map[shortcut.Target]string, 3)
	for _, target := range shortcut.Targets() {
		out[target] = s.Shortcut(target)
	}
	return out
}

// WithBindings returns a copy of s with every target present in bindings
// replaced.
func (s Settings) WithBindings(bindings map[shortcut.Target]string) Settings {
	for target, value := range bindings {
		s = s.WithShortcut(target, value)
	}
	return s
}

// Validate normalizes s into a candidate ready for the backend: empty fields
// take defaults and every chord is re-rendered in display form. An
// unparseable chord is an error.
func (s Settings) Validate() (Settings, error) {
	defaults := Default()
	out := defaults

	if strings.TrimSpace(string(s.CloseBehavior)) != "" {
		behavior, err := ParseCloseBehavior(string(s.CloseBehavior))
		if err != nil {
			return s, err
		}
		out.CloseBehavior = behavior
	}
	for _, target := range shortcut.Targets() {
		value := strings.TrimSpace(s.Shortcut(target))
		if value == "" {
			continue
		}
		chord, err := shortcut.ParseChord(value)
		if err != nil {
			return s, fmt.Errorf("%s shortcut: %w", target, err)
		}
		out = out.WithShortcut(target, chord.Display())
	}
	return out, nil
}

// BackendShortcuts renders the bindings in canonical form for
// update_shortcuts.
func (s Settings) BackendShortcuts() protocol.ShortcutSet {
	return protocol.ShortcutSet{
		Fullscreen: shortcut.Normalize(s.Shortcuts.Fullscreen),
		Region:     shortcut.Normalize(s.Shortcuts.Region),
		OCR:        shortcut.Normalize(s.Shortcuts.OCR),
	}
}

// Decode merges a persisted record with defaults field by field. A missing
// or malformed field falls back to its default; a record that is not a JSON
// object yields full defaults. Decode never fails.
func Decode(raw []byte) Settings {
	out := Default()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		slog.Warn("[WARN-SETTINGS] stored settings are not a JSON object, using defaults", "error", err)
		return out
	}

	if field, ok := top["closeBehavior"]; ok {
		var value string
		if err := json.Unmarshal(field, &value); err != nil {
			slog.Warn("[WARN-SETTINGS] closeBehavior is malformed, using default", "error", err)
		} else if behavior, err := ParseCloseBehavior(value); err != nil {
			slog.Warn("[WARN-SETTINGS] closeBehavior is invalid, using default", "value", value)
		} else {
			out.CloseBehavior = behavior
		}
	}

	field, ok := top["shortcuts"]
	if !ok {
		return out
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(field, &nested); err != nil {
		slog.Warn("[WARN-SETTINGS] shortcuts is malformed, using defaults", "error", err)
		return out
	}
	for _, target := range shortcut.Targets() {
		rawValue, ok := nested[string(target)]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(rawValue, &value); err != nil {
			slog.Warn("[WARN-SETTINGS] shortcut is malformed, using default", "target", target, "error", err)
			continue
		}
		chord, err := shortcut.ParseChord(value)
		if err != nil {
			slog.Warn("[WARN-SETTINGS] shortcut is invalid, using default", "target", target, "value", value, "error", err)
			continue
		}
		out = out.WithShortcut(target, chord.Display())
	}
	return out
}

// Encode serializes s in the persisted record format.
func Encode(s Settings) ([]byte, error) {
	return json.Marshal(s)
}
