// Package tracker is the boundary to the remote issue tracker: reads of
// issues and comments, and the mutations the triage pipeline issues.
package tracker

import (
	"context"
	"errors"

	"github.com/steveyegge/triage/internal/types"
)

// ErrUnsuccessful is returned when the tracker accepted a mutation request but
// reported success=false.
var ErrUnsuccessful = errors.New("tracker reported unsuccessful mutation")

// IssueUpdate is a partial issue update. Nil fields are left untouched on the
// tracker; a nil LabelIDs leaves labels unchanged.
type IssueUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	TeamID      *string  `json:"teamId,omitempty"`
	LabelIDs    []string `json:"labelIds,omitempty"`
	Estimate    *int     `json:"estimate,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	AssigneeID  *string  `json:"assigneeId,omitempty"`
}

// IsEmpty reports whether the update would change nothing
func (u *IssueUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.TeamID == nil &&
		u.LabelIDs == nil && u.Estimate == nil && u.Priority == nil && u.AssigneeID == nil
}

// Tracker is the remote tracker as seen by the triage pipeline.
// Implementations must be safe for concurrent use.
type Tracker interface {
	GetIssue(ctx context.Context, issueID string) (*types.Issue, error)
	// ListComments returns every comment on the issue, oldest first
	ListComments(ctx context.Context, issueID string) ([]types.Comment, error)

	UpdateIssue(ctx context.Context, issueID string, update IssueUpdate) error
	// CreateSubtask creates a child issue and returns its ID
	CreateSubtask(ctx context.Context, parentID, teamID, title string) (string, error)
	// CreateComment posts a comment and returns its ID
	CreateComment(ctx context.Context, issueID, body string) (string, error)
	AddLabel(ctx context.Context, issueID, labelID string) error
	Subscribe(ctx context.Context, issueID, userID string) error
	AddReaction(ctx context.Context, issueID, emoji string) error
}
