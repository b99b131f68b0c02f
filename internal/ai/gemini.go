package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiModel requests plans with a JSON response MIME type and a response
// schema mirroring the plan schema.
type GeminiModel struct {
	cli   *genai.Client
	model string
}

// NewGeminiModel creates the Gemini backend.
// An empty apiKey falls back to GEMINI_API_KEY.
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiModel{cli: cli, model: model}, nil
}

// Name identifies the backend in logs
func (g *GeminiModel) Name() string { return "gemini:" + g.model }

// Generate returns the model's JSON text
func (g *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Content}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
			ResponseMIMEType:  "application/json",
			ResponseSchema:    GeminiPlanSchema(),
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
