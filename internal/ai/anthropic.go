package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// planToolName is the tool the model is forced to call with the plan as input
const planToolName = "submit_triage_plan"

// AnthropicModel requests plans through a forced tool call, so the output is
// always a JSON object shaped by the plan schema.
type AnthropicModel struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicModel creates the Anthropic backend.
// An empty apiKey falls back to ANTHROPIC_API_KEY.
func NewAnthropicModel(apiKey, model string, maxTokens int) (*AnthropicModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicModel{client: &client, model: model, maxTokens: int64(maxTokens)}, nil
}

// Name identifies the backend in logs
func (m *AnthropicModel) Name() string { return "anthropic:" + m.model }

// Generate calls the Messages API and returns the tool input JSON
func (m *AnthropicModel) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Content)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        planToolName,
				Description: anthropic.String("Submit the triage plan for the issue."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: PlanSchemaProperties(),
					Required:   PlanSchemaRequired(),
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(planToolName),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == planToolName {
			return string(block.Input), nil
		}
	}
	return "", ErrEmptyResponse
}
