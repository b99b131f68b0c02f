package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"surrounding whitespace", "\n  {\"a\": 1}  \n", `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence with prose", "Here you go:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"empty", "   ", ""},
		{"no object", "no json here", "no json here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSONObject(tt.input))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "hello...", truncateString("hello world", 5))
	// "é" is two bytes; cutting inside it backs off to the previous rune
	assert.Equal(t, "ab...", truncateString("abé", 3))
}
