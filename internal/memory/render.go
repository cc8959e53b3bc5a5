package memory

import (
	"encoding/json"
	"strings"
)

// truncatedMarker is appended to string values cut by FormatSnapshot.
const truncatedMarker = "...[truncated]"

// FormatSnapshot renders memory as indented JSON for inclusion in a
// prompt. String values longer than maxValueLen are cut; maxValueLen <= 0
// disables cutting. An empty snapshot renders as "".
func FormatSnapshot(snapshot map[string]any, maxValueLen int) string {
	if len(snapshot) == 0 {
		return ""
	}
	view := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		if s, ok := v.(string); ok && maxValueLen > 0 && len(s) > maxValueLen {
			v = s[:maxValueLen] + truncatedMarker
		}
		view[k] = v
	}
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatKeys renders a key list for log lines, e.g. "url, html".
func FormatKeys(keys []string) string {
	return strings.Join(keys, ", ")
}
