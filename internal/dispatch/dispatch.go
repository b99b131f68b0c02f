// Package dispatch issues the tracker mutations of a triage plan.
//
// Each single mutation either succeeds or returns a *MutationError wrapping
// ErrMutationFailed. Nothing is retried here. Subtask creation is the only
// batched operation and tolerates partial failure.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steveyegge/triage/internal/tracker"
	"golang.org/x/sync/errgroup"
)

// ErrMutationFailed marks a tracker write that did not report success
var ErrMutationFailed = errors.New("tracker mutation failed")

// Operation names used in MutationError and metrics
const (
	OpUpdateIssue   = "update_issue"
	OpCreateSubtask = "create_subtask"
	OpCreateComment = "create_comment"
	OpAddLabel      = "add_label"
	OpSubscribe     = "subscribe"
	OpAddReaction   = "add_reaction"
)

// DefaultSubtaskConcurrency bounds concurrent subtask creations
const DefaultSubtaskConcurrency = 4

// MutationError describes one failed tracker mutation
type MutationError struct {
	Op      string
	IssueID string
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s on issue %s: %v", e.Op, e.IssueID, e.Err)
}

// Unwrap exposes both ErrMutationFailed and the transport cause
func (e *MutationError) Unwrap() []error {
	return []error{ErrMutationFailed, e.Err}
}

// FailureRecorder counts failed mutations by operation
type FailureRecorder interface {
	MutationFailed(op string)
}

// SubtaskResult is the outcome of one subtask creation
type SubtaskResult struct {
	Title string
	ID    string
	Err   error
}

// Dispatcher wraps a Tracker with per-call failure reporting
type Dispatcher struct {
	tracker            tracker.Tracker
	subtaskConcurrency int
	failures           FailureRecorder
	log                *slog.Logger
}

// Config holds dispatcher configuration
type Config struct {
	SubtaskConcurrency int             // Default: DefaultSubtaskConcurrency
	Failures           FailureRecorder // Optional
	Logger             *slog.Logger
}

// New creates a dispatcher over t
func New(t tracker.Tracker, cfg Config) *Dispatcher {
	if cfg.SubtaskConcurrency <= 0 {
		cfg.SubtaskConcurrency = DefaultSubtaskConcurrency
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		tracker:            t,
		subtaskConcurrency: cfg.SubtaskConcurrency,
		failures:           cfg.Failures,
		log:                log,
	}
}

func (d *Dispatcher) fail(op, issueID string, err error) error {
	if d.failures != nil {
		d.failures.MutationFailed(op)
	}
	d.log.Error("tracker mutation failed", "op", op, "issue_id", issueID, "error", err)
	return &MutationError{Op: op, IssueID: issueID, Err: err}
}

// UpdateIssue applies the update. An empty update issues no call.
func (d *Dispatcher) UpdateIssue(ctx context.Context, issueID string, update tracker.IssueUpdate) error {
	if update.IsEmpty() {
		d.log.Debug("skipping empty issue update", "issue_id", issueID)
		return nil
	}
	if err := d.tracker.UpdateIssue(ctx, issueID, update); err != nil {
		return d.fail(OpUpdateIssue, issueID, err)
	}
	return nil
}

// CreateComment posts body on the issue and returns the comment ID
func (d *Dispatcher) CreateComment(ctx context.Context, issueID, body string) (string, error) {
	id, err := d.tracker.CreateComment(ctx, issueID, body)
	if err != nil {
		return "", d.fail(OpCreateComment, issueID, err)
	}
	return id, nil
}

// AddLabel attaches one label
func (d *Dispatcher) AddLabel(ctx context.Context, issueID, labelID string) error {
	if err := d.tracker.AddLabel(ctx, issueID, labelID); err != nil {
		return d.fail(OpAddLabel, issueID, err)
	}
	return nil
}

// Subscribe subscribes userID to the issue
func (d *Dispatcher) Subscribe(ctx context.Context, issueID, userID string) error {
	if err := d.tracker.Subscribe(ctx, issueID, userID); err != nil {
		return d.fail(OpSubscribe, issueID, err)
	}
	return nil
}

// AddReaction reacts to the issue with emoji
func (d *Dispatcher) AddReaction(ctx context.Context, issueID, emoji string) error {
	if err := d.tracker.AddReaction(ctx, issueID, emoji); err != nil {
		return d.fail(OpAddReaction, issueID, err)
	}
	return nil
}

// CreateSubtasks creates one child issue per title concurrently and waits for
// all of them. A failure is recorded in that title's result and never stops
// the others. Results are in input order.
func (d *Dispatcher) CreateSubtasks(ctx context.Context, parentID, teamID string, titles []string) []SubtaskResult {
	results := make([]SubtaskResult, len(titles))
	if len(titles) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(d.subtaskConcurrency)
	for i, title := range titles {
		results[i].Title = title
		g.Go(func() error {
			id, err := d.tracker.CreateSubtask(ctx, parentID, teamID, title)
			if err != nil {
				results[i].Err = d.fail(OpCreateSubtask, parentID, err)
				return nil
			}
			results[i].ID = id
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FailedSubtasks counts results carrying an error
func FailedSubtasks(results []SubtaskResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
