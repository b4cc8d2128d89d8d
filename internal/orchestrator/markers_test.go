// File: internal/orchestrator/markers_test.go
package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMarkers(t *testing.T) {
	found := extractMarkers("Intent Frame: reach checkout\nsome reasoning\nVisual State: cart has 2 items")
	assert.Equal(t, "reach checkout", found["intent_frame"])
	assert.Equal(t, "cart has 2 items", found["visual_state"])
}

func TestExtractMarkers_AbsentMarkersYieldNothing(t *testing.T) {
	assert.Nil(t, extractMarkers("plain reasoning with no structure"))
	assert.Nil(t, extractMarkers(""))
}

func TestExtractMarkers_CaseInsensitiveAndTrimmed(t *testing.T) {
	found := extractMarkers("  intent frame: lower case label  ")
	assert.Equal(t, "lower case label", found["intent_frame"])
}
