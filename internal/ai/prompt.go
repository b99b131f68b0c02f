package ai

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/steveyegge/triage/internal/types"
)

// BotMarkerPlaceholder is replaced with the configured bot marker in system prompts
const BotMarkerPlaceholder = "{{botMarker}}"

// DefaultSystemPrompt is the built-in triage instruction.
const DefaultSystemPrompt = `You are an issue triage assistant for a software team.

Read the issue and decide how it should be routed. Use only the teams and labels
listed in the knowledge base below; never invent IDs.

Produce a triage plan:
- rewrite: a clearer title and/or description, only when the original is hard to act on
- priority: one of "Urgent", "High", "Medium", "Low", "No priority"
- teamId: the team whose keywords and domains best match the issue
- labelIds: labels from the label knowledge base that apply
- estimate: effort on the Fibonacci scale (0, 1, 2, 3, 5, 8, 13)
- assigneeId: only when the issue clearly names an owner
- subtasks: short titles when the work naturally splits into independent steps

If the issue lacks the information needed to triage it, set needsClarification
to true and write clarificationComment: one short question to the reporter.
End the comment with the marker {{botMarker}} exactly. Leave every other
field empty in that case.`

// RenderSystemPrompt substitutes the bot marker into a prompt template
func RenderSystemPrompt(template, marker string) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	return strings.ReplaceAll(template, BotMarkerPlaceholder, marker)
}

// BuildInstruction concatenates the system prompt with the serialized
// knowledge base.
func BuildInstruction(systemPrompt string, kb *types.KnowledgeBase) (string, error) {
	if kb == nil {
		kb = &types.KnowledgeBase{}
	}
	teams, err := json.MarshalIndent(kb.Teams, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize team knowledge base: %w", err)
	}
	labels := kb.Labels
	if labels == nil {
		labels = &types.LabelKnowledgeBase{Nodes: []types.Label{}}
	}
	labelJSON, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize label knowledge base: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(systemPrompt, "\n"))
	sb.WriteString("\n\n## Team knowledge base\n")
	sb.Write(teams)
	sb.WriteString("\n\n## Label knowledge base\n")
	sb.Write(labelJSON)
	sb.WriteString("\n")
	return sb.String(), nil
}

// IssueContent renders a freshly created issue as model input
func IssueContent(issue *types.Issue) string {
	return fmt.Sprintf("Title: %s\n\nDescription: %s", issue.Title, issue.Description)
}

// RetriageContent renders the original issue plus the conversation so far.
// Comments are ordered chronologically; comments carrying the marker are
// attributed to "Bot".
func RetriageContent(issue *types.Issue, comments []types.Comment, marker string) string {
	ordered := slices.Clone(comments)
	slices.SortStableFunc(ordered, func(a, b types.Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var sb strings.Builder
	sb.WriteString(IssueContent(issue))
	sb.WriteString("\n\nConversation:\n")
	for _, c := range ordered {
		fmt.Fprintf(&sb, "%s: %s\n", speaker(c, marker), c.Body)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func speaker(c types.Comment, marker string) string {
	switch {
	case c.HasMarker(marker):
		return "Bot"
	case c.UserName != "":
		return c.UserName
	default:
		return "User"
	}
}
