// Package trackertest provides an in-memory tracker that records every call.
package trackertest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/steveyegge/triage/internal/tracker"
	"github.com/steveyegge/triage/internal/types"
)

// Operation names recorded by Recorder
const (
	OpGetIssue      = "GetIssue"
	OpListComments  = "ListComments"
	OpUpdateIssue   = "UpdateIssue"
	OpCreateSubtask = "CreateSubtask"
	OpCreateComment = "CreateComment"
	OpAddLabel      = "AddLabel"
	OpSubscribe     = "Subscribe"
	OpAddReaction   = "AddReaction"
)

// Call is one recorded tracker call
type Call struct {
	Op      string
	IssueID string
	Arg     string // body, title, label, user or emoji depending on Op
	Update  tracker.IssueUpdate
}

// Recorder is a Tracker backed by maps. Fail makes an operation return an
// error; FailTitles fails individual subtask creations by title.
type Recorder struct {
	mu         sync.Mutex
	Issues     map[string]*types.Issue
	Comments   map[string][]types.Comment
	Fail       map[string]error
	FailTitles map[string]error
	calls      []Call
	nextID     int
}

// New creates an empty recorder
func New() *Recorder {
	return &Recorder{
		Issues:     make(map[string]*types.Issue),
		Comments:   make(map[string][]types.Comment),
		Fail:       make(map[string]error),
		FailTitles: make(map[string]error),
	}
}

// AddIssue seeds an issue
func (r *Recorder) AddIssue(issue *types.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Issues[issue.ID] = issue
}

// Calls returns a copy of the recorded calls
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallsTo returns recorded calls of one operation
func (r *Recorder) CallsTo(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the recorded operation names in order
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.Fail[c.Op]
}

func (r *Recorder) newID(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *Recorder) GetIssue(_ context.Context, issueID string) (*types.Issue, error) {
	if err := r.record(Call{Op: OpGetIssue, IssueID: issueID}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.Issues[issueID]
	if !ok {
		return nil, fmt.Errorf("issue %s not found", issueID)
	}
	cp := *issue
	cp.LabelIDs = slices.Clone(issue.LabelIDs)
	return &cp, nil
}

func (r *Recorder) ListComments(_ context.Context, issueID string) ([]types.Comment, error) {
	if err := r.record(Call{Op: OpListComments, IssueID: issueID}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.Comments[issueID]), nil
}

func (r *Recorder) UpdateIssue(_ context.Context, issueID string, update tracker.IssueUpdate) error {
	if err := r.record(Call{Op: OpUpdateIssue, IssueID: issueID, Update: update}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue, ok := r.Issues[issueID]; ok {
		if update.Title != nil {
			issue.Title = *update.Title
		}
		if update.Description != nil {
			issue.Description = *update.Description
		}
		if update.TeamID != nil {
			issue.TeamID = *update.TeamID
		}
		if update.LabelIDs != nil {
			issue.LabelIDs = slices.Clone(update.LabelIDs)
		}
	}
	return nil
}

func (r *Recorder) CreateSubtask(_ context.Context, parentID, _ string, title string) (string, error) {
	if err := r.record(Call{Op: OpCreateSubtask, IssueID: parentID, Arg: title}); err != nil {
		return "", err
	}
	r.mu.Lock()
	err := r.FailTitles[title]
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	return r.newID("sub"), nil
}

func (r *Recorder) CreateComment(_ context.Context, issueID, body string) (string, error) {
	if err := r.record(Call{Op: OpCreateComment, IssueID: issueID, Arg: body}); err != nil {
		return "", err
	}
	return r.newID("comment"), nil
}

func (r *Recorder) AddLabel(_ context.Context, issueID, labelID string) error {
	if err := r.record(Call{Op: OpAddLabel, IssueID: issueID, Arg: labelID}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue, ok := r.Issues[issueID]; ok && !slices.Contains(issue.LabelIDs, labelID) {
		issue.LabelIDs = append(issue.LabelIDs, labelID)
	}
	return nil
}

func (r *Recorder) Subscribe(_ context.Context, issueID, userID string) error {
	return r.record(Call{Op: OpSubscribe, IssueID: issueID, Arg: userID})
}

func (r *Recorder) AddReaction(_ context.Context, issueID, emoji string) error {
	return r.record(Call{Op: OpAddReaction, IssueID: issueID, Arg: emoji})
}

var _ tracker.Tracker = (*Recorder)(nil)
