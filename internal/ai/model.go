package ai

import (
	"context"
	"errors"
)

// Default model names, overridable through configuration
const (
	// DefaultAnthropicModel is used when the anthropic provider has no model configured
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

	// DefaultGeminiModel is used when the gemini provider has no model configured
	DefaultGeminiModel = "gemini-2.5-flash"
)

// ErrEmptyResponse is returned when the model produced no structured output
var ErrEmptyResponse = errors.New("model returned no structured output")

// Request is one model invocation: the instruction (system prompt plus
// serialized knowledge base) and the task input.
type Request struct {
	System  string
	Content string
}

// Model produces the raw JSON text of a triage plan under structured-output
// constraints. Implementations hold no per-request state and are safe for
// concurrent use.
type Model interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}
