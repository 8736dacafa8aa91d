package shortcut

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Modifier is a bitmask of chord modifiers.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
)

// displaySeparator joins chord parts for the settings surface.
const displaySeparator = " + "

var (
	// ErrNoModifier is returned for chords without Ctrl, Shift or Alt.
	ErrNoModifier = errors.New("at least one modifier is required")
	// ErrModifierOnly is returned when the key part of a chord is a modifier.
	ErrModifierOnly = errors.New("chord has no non-modifier key")
)

var modifierByName = map[string]Modifier{
	"CTRL":    ModCtrl,
	"CONTROL": ModCtrl,
	"SHIFT":   ModShift,
	"ALT":     ModAlt,
}

// modifierOrder fixes the display order of modifiers.
var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{ModCtrl, "Ctrl"},
	{ModShift, "Shift"},
	{ModAlt, "Alt"},
}

var namedKeys = map[string]string{
	"SPACE":      "Space",
	"TAB":        "Tab",
	"ENTER":      "Enter",
	"RETURN":     "Enter",
	"ESC":        "Escape",
	"ESCAPE":     "Escape",
	"BACKSPACE":  "Backspace",
	"DELETE":     "Delete",
	"INSERT":     "Insert",
	"HOME":       "Home",
	"END":        "End",
	"PAGEUP":     "PageUp",
	"PAGEDOWN":   "PageDown",
	"UP":         "Up",
	"DOWN":       "Down",
	"LEFT":       "Left",
	"RIGHT":      "Right",
	"ARROWUP":    "Up",
	"ARROWDOWN":  "Down",
	"ARROWLEFT":  "Left",
	"ARROWRIGHT": "Right",
}

// Numpad keys render as Num0-Num9 and NumAdd style names.
func init() {
	for d := '0'; d <= '9'; d++ {
		namedKeys["NUM"+string(d)] = "Num" + string(d)
	}
	for _, name := range []string{"NumAdd", "NumSubtract", "NumMultiply", "NumDivide", "NumDecimal", "NumEnter"} {
		namedKeys[strings.ToUpper(name)] = name
	}
}

// punctuationKeys are single-character keys accepted verbatim.
const punctuationKeys = "`-=[]\\;',./"

var separatorPattern = regexp.MustCompile(`\s*\+\s*`)

// Chord is a validated key chord: one or more modifiers plus exactly one
// non-modifier key. Construct only via ParseChord or FromKeyEvent.
type Chord struct {
	modifiers Modifier
	key       string
}

// Modifiers returns the modifier bitmask.
func (c Chord) Modifiers() Modifier { return c.modifiers }

// Key returns the display name of the non-modifier key.
func (c Chord) Key() string { return c.key }

// IsZero reports whether c is the zero Chord.
func (c Chord) IsZero() bool { return c.modifiers == 0 && c.key == "" }

// Display renders the chord as shown in the settings surface,
// e.g. "Ctrl + Shift + S".
func (c Chord) Display() string {
	if c.IsZero() {
		return ""
	}
	parts := make([]string, 0, len(modifierOrder)+1)
	for _, m := range modifierOrder {
		if c.modifiers&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	parts = append(parts, c.key)
	return strings.Join(parts, displaySeparator)
}

// Canonical renders the chord in the form the capture service registers,
// e.g. "ctrl+shift+s".
func (c Chord) Canonical() string {
	return Normalize(c.Display())
}

// Normalize converts a display chord into its canonical form: lowercase,
// whitespace around "+" removed and "control" spelled "ctrl".
func Normalize(display string) string {
	out := strings.ToLower(strings.TrimSpace(display))
	out = separatorPattern.ReplaceAllString(out, "+")
	return strings.ReplaceAll(out, "control", "ctrl")
}

// ParseChord parses a display or canonical chord such as "Ctrl + Shift + S"
// or "ctrl+shift+s". Duplicate modifiers are collapsed.
func ParseChord(spec string) (Chord, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Chord{}, errors.New("shortcut is empty")
	}

	parts := strings.Split(raw, "+")
	keyToken := strings.TrimSpace(parts[len(parts)-1])
	if keyToken == "" {
		return Chord{}, fmt.Errorf("shortcut %q has no key", raw)
	}

	var modifiers Modifier
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Chord{}, fmt.Errorf("unknown modifier %q in shortcut %q", strings.TrimSpace(token), raw)
		}
		modifiers |= mod
	}

	if _, isModifier := modifierByName[strings.ToUpper(keyToken)]; isModifier {
		return Chord{}, fmt.Errorf("%w: %q", ErrModifierOnly, raw)
	}
	key, err := parseKey(keyToken)
	if err != nil {
		return Chord{}, err
	}
	if modifiers == 0 {
		return Chord{}, fmt.Errorf("%w: %q", ErrNoModifier, raw)
	}
	return Chord{modifiers: modifiers, key: key}, nil
}

// parseKey validates a key token and returns its display name.
func parseKey(raw string) (string, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return "", errors.New("missing key")
	}
	if name, ok := namedKeys[token]; ok {
		return name, nil
	}
	if isFunctionKey(token) {
		return token, nil
	}
	if len(token) == 1 {
		ch := token[0]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			return token, nil
		case strings.IndexByte(punctuationKeys, ch) >= 0:
			return token, nil
		}
	}
	return "", fmt.Errorf("unsupported key %q", strings.TrimSpace(raw))
}

// isFunctionKey matches F1 through F24.
func isFunctionKey(token string) bool {
	if len(token) < 2 || len(token) > 3 || token[0] != 'F' {
		return false
	}
	n := 0
	for _, ch := range token[1:] {
		if ch < '0' || ch > '9' {
			return false
		}
		n = n*10 + int(ch-'0')
	}
	return n >= 1 && n <= 24 && token[1] != '0'
}
