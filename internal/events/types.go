// Package events defines the inbound webhook events the tracker delivers and
// decodes them into typed issue and comment payloads.
package events

import (
	"encoding/json"
	"time"
)

// Action is the kind of change the tracker reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// EntityType is the kind of entity the event is about.
type EntityType string

const (
	TypeIssue   EntityType = "Issue"
	TypeComment EntityType = "Comment"
)

// Event is one webhook delivery.
type Event struct {
	Action           Action          `json:"action"`
	Type             EntityType      `json:"type"`
	Data             json.RawMessage `json:"data"`
	OrganizationID   string          `json:"organizationId"`
	CreatedAt        time.Time       `json:"createdAt"`
	WebhookTimestamp int64           `json:"webhookTimestamp,omitempty"` // Unix millis set by the sender
	URL              string          `json:"url,omitempty"`
}

// IsTriageTrigger reports whether the event starts triage processing.
// Only created issues and created comments do; everything else is acknowledged
// and ignored.
func (e *Event) IsTriageTrigger() bool {
	return e.Action == ActionCreate && (e.Type == TypeIssue || e.Type == TypeComment)
}

// Kind returns a compact "<action>:<type>" label for logs and metrics.
func (e *Event) Kind() string {
	return string(e.Action) + ":" + string(e.Type)
}

// IssueData is the payload of an Issue event.
type IssueData struct {
	ID          string   `json:"id"`
	Identifier  string   `json:"identifier,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TeamID      string   `json:"teamId,omitempty"`
	CreatorID   string   `json:"creatorId,omitempty"`
	LabelIDs    []string `json:"labelIds,omitempty"`
}

// UserRef is the embedded author of a comment.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CommentData is the payload of a Comment event.
type CommentData struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	UserID    string    `json:"userId,omitempty"`
	IssueID   string    `json:"issueId"`
	User      *UserRef  `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthorID returns the comment author, preferring the flat userId field.
func (c *CommentData) AuthorID() string {
	if c.UserID != "" {
		return c.UserID
	}
	if c.User != nil {
		return c.User.ID
	}
	return ""
}
