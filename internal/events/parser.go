package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/triage/internal/types"
)

// ErrInvalidEvent is returned for deliveries that cannot be decoded.
var ErrInvalidEvent = errors.New("invalid webhook event")

// Decode parses a raw webhook body.
func Decode(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.Action == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: missing action or type", ErrInvalidEvent)
	}
	return &ev, nil
}

// IssueData decodes the payload of an Issue event.
func (e *Event) IssueData() (*IssueData, error) {
	if e.Type != TypeIssue {
		return nil, fmt.Errorf("%w: event type %s is not %s", ErrInvalidEvent, e.Type, TypeIssue)
	}
	var d IssueData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("%w: issue data: %v", ErrInvalidEvent, err)
	}
	if err := d.Issue().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return &d, nil
}

// CommentData decodes the payload of a Comment event.
func (e *Event) CommentData() (*CommentData, error) {
	if e.Type != TypeComment {
		return nil, fmt.Errorf("%w: event type %s is not %s", ErrInvalidEvent, e.Type, TypeComment)
	}
	var d CommentData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("%w: comment data: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(d.IssueID) == "" {
		return nil, fmt.Errorf("%w: comment data has no issueId", ErrInvalidEvent)
	}
	return &d, nil
}

// Issue converts the payload to the shared issue model.
func (d *IssueData) Issue() *types.Issue {
	return &types.Issue{
		ID:          d.ID,
		Identifier:  d.Identifier,
		Title:       d.Title,
		Description: d.Description,
		TeamID:      d.TeamID,
		CreatorID:   d.CreatorID,
		LabelIDs:    append([]string(nil), d.LabelIDs...),
	}
}

// Comment converts the payload to the shared comment model.
func (d *CommentData) Comment() *types.Comment {
	c := &types.Comment{
		ID:        d.ID,
		Body:      d.Body,
		UserID:    d.AuthorID(),
		IssueID:   d.IssueID,
		CreatedAt: d.CreatedAt,
	}
	if d.User != nil {
		c.UserName = d.User.Name
	}
	return c
}
