// Package types holds the data model shared by the triage pipeline: tracker
// issues and comments, the model-produced triage plan and the knowledge base.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Issue represents a ticket in the remote tracker.
// LabelIDs reflects the tracker at fetch time and is never cached.
type Issue struct {
	ID          string   `json:"id"`
	Identifier  string   `json:"identifier,omitempty"` // Human-readable key, e.g. ENG-123
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TeamID      string   `json:"teamId,omitempty"`
	CreatorID   string   `json:"creatorId,omitempty"`
	LabelIDs    []string `json:"labelIds,omitempty"`
}

// Validate checks that the issue carries enough data to be triaged
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("issue id is required")
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("issue %s has no title", i.ID)
	}
	return nil
}

// Comment is an immutable comment on an issue.
type Comment struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	UserID    string    `json:"userId,omitempty"`
	UserName  string    `json:"userName,omitempty"`
	IssueID   string    `json:"issueId"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMarker reports whether the comment body carries the bot marker token.
// An empty marker never matches.
func (c *Comment) HasMarker(marker string) bool {
	return marker != "" && strings.Contains(c.Body, marker)
}
