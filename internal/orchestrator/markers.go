// File: internal/orchestrator/markers.go
package orchestrator

import (
	"regexp"
	"strings"
)

// Marker lines the model is encouraged to emit in its reasoning. They are
// telemetry only: extraction feeds step annotations and nothing in the loop's
// control flow reads them.
var markerPatterns = map[string]*regexp.Regexp{
	"intent_frame": regexp.MustCompile(`(?mi)^\s*Intent Frame:\s*(.+)$`),
	"visual_state": regexp.MustCompile(`(?mi)^\s*Visual State:\s*(.+)$`),
}

// extractMarkers pulls recognized marker lines out of assistant text. Absent
// markers simply produce no annotation; a missing marker is never an error.
func extractMarkers(text string) map[string]string {
	var found map[string]string
	for key, re := range markerPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if found == nil {
			found = make(map[string]string, len(markerPatterns))
		}
		found[key] = strings.TrimSpace(m[1])
	}
	return found
}
