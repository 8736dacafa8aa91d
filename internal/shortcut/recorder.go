package shortcut

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
)

// Placeholder is the working value shown while a target is recording.
const Placeholder = "Press shortcut..."

// Target identifies which workflow a binding triggers.
type Target string

const (
	TargetFullscreen Target = "fullscreen"
	TargetRegion     Target = "region"
	TargetOCR        Target = "ocr"
)

// Targets returns every bindable target in display order.
func Targets() []Target {
	return []Target{TargetFullscreen, TargetRegion, TargetOCR}
}

// ParseTarget validates a target name.
func ParseTarget(name string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(name))); t {
	case TargetFullscreen, TargetRegion, TargetOCR:
		return t, nil
	default:
		return "", fmt.Errorf("unknown shortcut target %q", name)
	}
}

// KeyEvent is a key-down observed by the settings surface. Key is the
// produced character or key name; Code is the physical key, e.g. "Digit1"
// or "NumpadAdd", and may be empty.
type KeyEvent struct {
	Key   string `json:"key"`
	Code  string `json:"code"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
}

// codePunctuation maps physical punctuation keys to their unshifted key.
var codePunctuation = map[string]string{
	"Backquote":    "`",
	"Minus":        "-",
	"Equal":        "=",
	"BracketLeft":  "[",
	"BracketRight": "]",
	"Backslash":    "\\",
	"Semicolon":    ";",
	"Quote":        "'",
	"Comma":        ",",
	"Period":       ".",
	"Slash":        "/",
}

var numpadOperators = map[string]string{
	"NumpadAdd":      "NumAdd",
	"NumpadSubtract": "NumSubtract",
	"NumpadMultiply": "NumMultiply",
	"NumpadDivide":   "NumDivide",
	"NumpadDecimal":  "NumDecimal",
	"NumpadEnter":    "NumEnter",
}

// shiftedSymbols maps US-layout shifted characters back to their key, for
// events that arrive without a Code.
var shiftedSymbols = map[string]string{
	"!": "1", "@": "2", "#": "3", "$": "4", "%": "5",
	"^": "6", "&": "7", "*": "8", "(": "9", ")": "0",
	"_": "-", "+": "=", "{": "[", "}": "]", "|": "\\",
	":": ";", "\"": "'", "<": ",", ">": ".", "?": "/", "~": "`",
}

// keyFromCode returns the key token for a physical key code.
func keyFromCode(code string) (token string, numpad bool, ok bool) {
	switch {
	case len(code) == len("Digit0") && strings.HasPrefix(code, "Digit"):
		return code[len("Digit"):], false, true
	case len(code) == len("KeyA") && strings.HasPrefix(code, "Key"):
		return code[len("Key"):], false, true
	case len(code) == len("Numpad0") && strings.HasPrefix(code, "Numpad"):
		return "Num" + code[len("Numpad"):], true, true
	}
	if token, ok := numpadOperators[code]; ok {
		return token, true, true
	}
	if token, ok := codePunctuation[code]; ok {
		return token, false, true
	}
	return "", false, false
}

// keyToken picks the key part of a chord. Numpad keys always go by Code so
// they stay distinct from the main row. With Shift held, Key carries the
// shifted character, so the physical key is used instead. Otherwise Key
// wins, which keeps the user's layout.
func keyToken(ev KeyEvent) string {
	if token, numpad, ok := keyFromCode(ev.Code); ok && (numpad || ev.Shift) {
		return token
	}
	if ev.Shift {
		if token, ok := shiftedSymbols[ev.Key]; ok {
			return token
		}
	}
	if ev.Key == " " {
		return "Space"
	}
	return ev.Key
}

var loneModifierKeys = map[string]struct{}{
	"CONTROL": {},
	"SHIFT":   {},
	"ALT":     {},
	"META":    {},
}

// IsModifierKey reports whether key names a bare modifier key.
func IsModifierKey(key string) bool {
	_, ok := loneModifierKeys[strings.ToUpper(strings.TrimSpace(key))]
	return ok
}

// FromKeyEvent builds a chord from a key-down. Meta is not part of the chord
// vocabulary and is ignored.
func FromKeyEvent(ev KeyEvent) (Chord, error) {
	if IsModifierKey(ev.Key) {
		return Chord{}, ErrModifierOnly
	}
	key, err := parseKey(keyToken(ev))
	if err != nil {
		return Chord{}, err
	}
	var modifiers Modifier
	if ev.Ctrl {
		modifiers |= ModCtrl
	}
	if ev.Shift {
		modifiers |= ModShift
	}
	if ev.Alt {
		modifiers |= ModAlt
	}
	if modifiers == 0 {
		return Chord{}, ErrNoModifier
	}
	return Chord{modifiers: modifiers, key: key}, nil
}

// Outcome describes what a key-down did to the recorder.
type Outcome string

const (
	OutcomeNotRecording Outcome = "not-recording"
	OutcomeModifierOnly Outcome = "modifier-only"
	OutcomeRejected     Outcome = "rejected"
	OutcomeCommitted    Outcome = "committed"
)

// KeyResult is returned for every key-down. Consumed tells the surface to
// suppress the key's default effect.
type KeyResult struct {
	Consumed bool    `json:"consumed"`
	Outcome  Outcome `json:"outcome"`
	Target   Target  `json:"target,omitempty"`
	Display  string  `json:"display,omitempty"`
}

// State is a snapshot of the recorder.
type State struct {
	Active bool   `json:"active"`
	Target Target `json:"target,omitempty"`
}

// Recorder captures one chord at a time into a working copy of the bindings.
// At most one target records at any moment.
type Recorder struct {
	mu        sync.Mutex
	active    bool
	target    Target
	confirmed map[Target]string
	working   map[Target]string
}

// NewRecorder creates an inactive recorder whose working copy equals
// confirmed.
func NewRecorder(confirmed map[Target]string) *Recorder {
	r := &Recorder{}
	r.Reset(confirmed)
	return r
}

// Reset stops any recording and replaces both the confirmed bindings and
// the working copy.
func (r *Recorder) Reset(confirmed map[Target]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.target = ""
	r.confirmed = maps.Clone(confirmed)
	if r.confirmed == nil {
		r.confirmed = map[Target]string{}
	}
	r.working = maps.Clone(r.confirmed)
}

// Start begins recording for target. A recording already in progress is
// cancelled first and its working value reverted.
func (r *Recorder) Start(target Target) error {
	if _, err := ParseTarget(string(target)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		slog.Debug("[DEBUG-SHORTCUT] deactivating previous recording", "previous", r.target, "next", target)
		r.revertLocked()
	}
	r.active = true
	r.target = target
	r.working[target] = Placeholder
	return nil
}

// Cancel stops recording without committing. It returns the target that
// was recording, if any.
func (r *Recorder) Cancel() (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return "", false
	}
	target := r.target
	r.revertLocked()
	return target, true
}

func (r *Recorder) revertLocked() {
	r.working[r.target] = r.confirmed[r.target]
	r.active = false
	r.target = ""
}

// HandleKey feeds one key-down into the recorder.
func (r *Recorder) HandleKey(ev KeyEvent) KeyResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return KeyResult{Outcome: OutcomeNotRecording}
	}
	target := r.target
	if IsModifierKey(ev.Key) {
		return KeyResult{Consumed: true, Outcome: OutcomeModifierOnly, Target: target}
	}
	chord, err := FromKeyEvent(ev)
	if err != nil {
		slog.Debug("[DEBUG-SHORTCUT] key rejected while recording", "target", target, "key", ev.Key, "code", ev.Code, "error", err)
		return KeyResult{Consumed: true, Outcome: OutcomeRejected, Target: target}
	}
	display := chord.Display()
	r.working[target] = display
	r.active = false
	r.target = ""
	return KeyResult{Consumed: true, Outcome: OutcomeCommitted, Target: target, Display: display}
}

// State returns the current recording state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Active: r.active, Target: r.target}
}

// Working returns a copy of the working bindings.
func (r *Recorder) Working() map[Target]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.working)
}
