// File: internal/browser/keymap_test.go
package browser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestMapKeyName(t *testing.T) {
	assert.Equal(t, "Enter", MapKeyName("Return"))
	assert.Equal(t, "ArrowUp", MapKeyName("Up"))
	assert.Equal(t, "Numpad0", MapKeyName("KP_0"))
	assert.Equal(t, "Numpad9", MapKeyName("KP_9"))
	// Unmapped names pass through untouched.
	assert.Equal(t, "F5", MapKeyName("F5"))
	assert.Equal(t, "a", MapKeyName("a"))
}

func TestDecomposeKeyCombo_PlainKey(t *testing.T) {
	strokes := DecomposeKeyCombo("Return")
	assert.Equal(t, []KeyStroke{{Key: "Enter", Kind: StrokePress}}, strokes)
}

func TestDecomposeKeyCombo_SingleModifier(t *testing.T) {
	strokes := DecomposeKeyCombo("ctrl+s")
	assert.Equal(t, []KeyStroke{
		{Key: "Control", Kind: StrokeDown},
		{Key: "s", Kind: StrokePress},
		{Key: "Control", Kind: StrokeUp},
	}, strokes)
}

func TestDecomposeKeyCombo_MultipleModifiersReleaseInReverse(t *testing.T) {
	strokes := DecomposeKeyCombo("ctrl+shift+Return")
	want := []KeyStroke{
		{Key: "Control", Kind: StrokeDown},
		{Key: "Shift", Kind: StrokeDown},
		{Key: "Enter", Kind: StrokePress},
		{Key: "Shift", Kind: StrokeUp},
		{Key: "Control", Kind: StrokeUp},
	}
	if diff := cmp.Diff(want, strokes); diff != "" {
		t.Errorf("stroke sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestDecomposeKeyCombo_ModifierAliases(t *testing.T) {
	for _, alias := range []string{"cmd", "meta", "super"} {
		strokes := DecomposeKeyCombo(alias + "+a")
		assert.Equal(t, "Meta", strokes[0].Key, "alias %q", alias)
	}
}
