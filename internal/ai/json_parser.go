package ai

import (
	"regexp"
	"strings"
)

// Pre-compiled regular expressions for performance.
var (
	// Matches ```json\n{...}\n```, ```{...}```, ``` json{...}``` anywhere in the text
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json|JSON)?\\s*\\n?(.*?)\\n?`{3}")
)

// extractJSONObject returns the JSON object text in raw model output.
// Structured-output backends return a bare object; a markdown fence around
// it is tolerated. Anything else is returned unchanged for the decoder to reject.
func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	if strings.HasPrefix(text, "{") {
		return text
	}
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
