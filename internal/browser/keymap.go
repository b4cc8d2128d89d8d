// File: internal/browser/keymap.go
package browser

import "strings"

// keyNameMap translates the platform-agnostic key vocabulary the model emits
// (X11-style names) into the CDP key vocabulary. Unmapped names pass through
// unchanged.
var keyNameMap = map[string]string{
	"Return": "Enter",
	"Up":     "ArrowUp",
	"Down":   "ArrowDown",
	"Left":   "ArrowLeft",
	"Right":  "ArrowRight",
	"KP_0":   "Numpad0",
	"KP_1":   "Numpad1",
	"KP_2":   "Numpad2",
	"KP_3":   "Numpad3",
	"KP_4":   "Numpad4",
	"KP_5":   "Numpad5",
	"KP_6":   "Numpad6",
	"KP_7":   "Numpad7",
	"KP_8":   "Numpad8",
	"KP_9":   "Numpad9",
}

// modifierNameMap normalizes the lowercase modifier aliases found in key
// combination strings ("ctrl+s") to CDP modifier key names.
var modifierNameMap = map[string]string{
	"ctrl":    "Control",
	"control": "Control",
	"alt":     "Alt",
	"shift":   "Shift",
	"meta":    "Meta",
	"cmd":     "Meta",
	"super":   "Meta",
}

// MapKeyName resolves a single key name to its CDP equivalent.
func MapKeyName(name string) string {
	if mapped, ok := keyNameMap[name]; ok {
		return mapped
	}
	return name
}

// StrokeKind classifies one low-level key event.
type StrokeKind int

const (
	StrokeDown StrokeKind = iota
	StrokeUp
	StrokePress // down immediately followed by up
)

// KeyStroke is one low-level key event with an already-mapped key name.
type KeyStroke struct {
	Key  string
	Kind StrokeKind
}

// DecomposeKeyCombo expands a key expression into its ordered low-level
// strokes. A plain key yields a single press. A combination "mod1+mod2+key"
// yields: down(mod1), down(mod2), press(key), up(mod2), up(mod1). Modifiers
// are released in strict reverse order.
func DecomposeKeyCombo(expr string) []KeyStroke {
	if !strings.Contains(expr, "+") {
		return []KeyStroke{{Key: MapKeyName(expr), Kind: StrokePress}}
	}

	parts := strings.Split(expr, "+")
	modifiers := parts[:len(parts)-1]
	key := parts[len(parts)-1]

	strokes := make([]KeyStroke, 0, 2*len(modifiers)+1)
	for _, m := range modifiers {
		name := strings.ToLower(m)
		if mapped, ok := modifierNameMap[name]; ok {
			name = mapped
		} else {
			name = MapKeyName(m)
		}
		strokes = append(strokes, KeyStroke{Key: name, Kind: StrokeDown})
	}
	strokes = append(strokes, KeyStroke{Key: MapKeyName(key), Kind: StrokePress})
	for i := len(modifiers) - 1; i >= 0; i-- {
		strokes = append(strokes, KeyStroke{Key: strokes[i].Key, Kind: StrokeUp})
	}
	return strokes
}
