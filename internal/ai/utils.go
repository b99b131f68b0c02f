package ai

import "unicode/utf8"

// truncateString truncates a string to maxLen bytes for log previews,
// preserving UTF-8 boundaries
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]
	// Walk back at most 3 bytes to a valid boundary
	for i := 0; i < 4 && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			return truncated + "..."
		}
		truncated = truncated[:len(truncated)-1]
	}
	return ""
}
