// Package triage drives an issue through the triage state machine.
//
// State Flow (derived from the awaiting-info label, see package labels):
//   - issue created: fresh → awaiting_info (clarification) or triaged
//   - comment created on an awaiting_info issue: → awaiting_info (another
//     clarification) or triaged
//
// Every event runs knowledge base load → content assembly → plan generation →
// reconciliation → dispatch. Nothing is written to the tracker before a plan
// exists, and any failure ends the event with the issue left as it was.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/triage/internal/ai"
	"github.com/steveyegge/triage/internal/dispatch"
	"github.com/steveyegge/triage/internal/events"
	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/labels"
	"github.com/steveyegge/triage/internal/tracker"
	"github.com/steveyegge/triage/internal/types"
)

// DefaultBotMarker is appended to every comment the service writes
const DefaultBotMarker = "<!-- bot -->"

// DefaultCompletionEmoji is the reaction posted when triage completes
const DefaultCompletionEmoji = "white_check_mark"

// Reasons recorded for ignored events
const (
	ReasonNotTrigger      = "not a triage trigger"
	ReasonBotComment      = "comment written by the bot"
	ReasonNoMarkerLabel   = "awaiting-info label not configured"
	ReasonNotAwaitingInfo = "issue is not awaiting info"
)

// KnowledgeSource loads the knowledge base handed to the planner
type KnowledgeSource interface {
	Load(ctx context.Context) (*types.KnowledgeBase, error)
}

// PlanGenerator produces a validated plan for issue content
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, systemPrompt string, kb *types.KnowledgeBase, issueContent string) (*types.TriagePlan, error)
}

// RunRecorder persists the audit trail and the explicit issue state
type RunRecorder interface {
	RecordRun(ctx context.Context, run *types.Run) error
	SetIssueState(ctx context.Context, issueID string, state types.IssueState) error
}

// Observer receives one call per handled event
type Observer interface {
	EventHandled(kind string, outcome types.Outcome, duration time.Duration)
}

// Notifier publishes the result of every processed event
type Notifier interface {
	Publish(ctx context.Context, result *Result) error
}

// Result describes how one event was handled
type Result struct {
	RunID      string                   `json:"run_id"`
	IssueID    string                   `json:"issue_id,omitempty"`
	EventKind  string                   `json:"event_kind"`
	Outcome    types.Outcome            `json:"outcome"`
	Reason     string                   `json:"reason,omitempty"`
	State      types.IssueState         `json:"state,omitempty"`
	Plan       *types.TriagePlan        `json:"plan,omitempty"`
	Update     *tracker.IssueUpdate     `json:"update,omitempty"`
	CommentID  string                   `json:"comment_id,omitempty"`
	Subtasks   []dispatch.SubtaskResult `json:"-"`
	Error      string                   `json:"error,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}

// Config holds orchestrator dependencies and settings
type Config struct {
	KB      KnowledgeSource
	Planner PlanGenerator
	Tracker tracker.Tracker

	// Dispatcher defaults to one built over Tracker
	Dispatcher *dispatch.Dispatcher

	// SystemPrompt is the rendered instruction (marker already substituted)
	SystemPrompt string

	// AwaitingInfoLabel is the marker label ID; empty disables the
	// clarification round trip
	AwaitingInfoLabel string

	BotMarker       string // Default: DefaultBotMarker
	CompletionEmoji string // Default: DefaultCompletionEmoji

	Recorder RunRecorder // Optional
	Observer Observer    // Optional
	Notifier Notifier    // Optional
	Logger   *slog.Logger
}

// Orchestrator handles tracker events. Events for the same issue are
// processed one at a time; different issues proceed concurrently.
type Orchestrator struct {
	kb           KnowledgeSource
	planner      PlanGenerator
	tracker      tracker.Tracker
	dispatcher   *dispatch.Dispatcher
	systemPrompt string
	marker       string
	botMarker    string
	emoji        string
	recorder     RunRecorder
	observer     Observer
	notifier     Notifier
	locks        *keyedMutex
	log          *slog.Logger
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.KB == nil {
		return nil, fmt.Errorf("knowledge source is required")
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	d := cfg.Dispatcher
	if d == nil {
		d = dispatch.New(cfg.Tracker, dispatch.Config{Logger: log})
	}
	botMarker := cfg.BotMarker
	if botMarker == "" {
		botMarker = DefaultBotMarker
	}
	emoji := cfg.CompletionEmoji
	if emoji == "" {
		emoji = DefaultCompletionEmoji
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = ai.RenderSystemPrompt("", botMarker)
	}

	return &Orchestrator{
		kb:           cfg.KB,
		planner:      cfg.Planner,
		tracker:      cfg.Tracker,
		dispatcher:   d,
		systemPrompt: systemPrompt,
		marker:       cfg.AwaitingInfoLabel,
		botMarker:    botMarker,
		emoji:        emoji,
		recorder:     cfg.Recorder,
		observer:     cfg.Observer,
		notifier:     cfg.Notifier,
		locks:        newKeyedMutex(),
		log:          log,
	}, nil
}

// HandleEvent routes an inbound event. Only created issues and created
// comments are processed; anything else is ignored without remote calls.
// The returned error is also stored on the result.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *events.Event) (*Result, error) {
	if !ev.IsTriageTrigger() {
		res := o.newResult(ev.Kind(), "")
		return o.ignore(res, ReasonNotTrigger), nil
	}

	switch ev.Type {
	case events.TypeIssue:
		data, err := ev.IssueData()
		if err != nil {
			return o.finish(ctx, o.newResult(ev.Kind(), ""), nil, err)
		}
		return o.HandleIssueCreated(ctx, data.Issue())
	default:
		data, err := ev.CommentData()
		if err != nil {
			return o.finish(ctx, o.newResult(ev.Kind(), ""), nil, err)
		}
		return o.HandleCommentCreated(ctx, data.Comment())
	}
}

// HandleIssueCreated triages a new issue from its title and description
func (o *Orchestrator) HandleIssueCreated(ctx context.Context, issue *types.Issue) (*Result, error) {
	res := o.newResult("create:Issue", issue.ID)
	log := o.log.With("run_id", res.RunID, "issue_id", issue.ID, "event", res.EventKind)

	unlock := o.locks.Lock(issue.ID)
	defer unlock()

	log.Info("triaging new issue", "identifier", issue.Identifier)

	plan, reconciled, err := o.plan(ctx, log, res, ai.IssueContent(issue))
	if err != nil {
		return o.finish(ctx, res, log, err)
	}

	if reconciled.NeedsClarification {
		if err := o.requestClarification(ctx, res, issue.ID, reconciled, true); err != nil {
			return o.finish(ctx, res, log, err)
		}
		log.Info("clarification requested", "comment_id", res.CommentID)
		return o.finish(ctx, res, log, nil)
	}

	update := reconciled.Update
	if update.LabelIDs != nil {
		update.LabelIDs = labels.MergeRetriage(issue.LabelIDs, o.marker, update.LabelIDs)
	}
	teamID := issue.TeamID
	if plan.TeamID != nil {
		teamID = *plan.TeamID
	}

	if err := o.complete(ctx, log, res, issue.ID, teamID, update, reconciled.Subtasks); err != nil {
		return o.finish(ctx, res, log, err)
	}
	if issue.CreatorID != "" {
		if err := o.dispatcher.Subscribe(ctx, issue.ID, issue.CreatorID); err != nil {
			return o.finish(ctx, res, log, err)
		}
	}
	if err := o.dispatcher.AddReaction(ctx, issue.ID, o.emoji); err != nil {
		return o.finish(ctx, res, log, err)
	}

	res.Outcome = types.OutcomeTriaged
	res.State = types.StateTriaged
	log.Info("issue triaged", "subtasks", len(res.Subtasks))
	return o.finish(ctx, res, log, nil)
}

// HandleCommentCreated re-triages an issue that is waiting for information.
// Comments carrying the bot marker are dropped before anything else happens.
func (o *Orchestrator) HandleCommentCreated(ctx context.Context, comment *types.Comment) (*Result, error) {
	res := o.newResult("create:Comment", comment.IssueID)

	if comment.HasMarker(o.botMarker) {
		return o.ignore(res, ReasonBotComment), nil
	}
	if o.marker == "" {
		return o.ignore(res, ReasonNoMarkerLabel), nil
	}

	log := o.log.With("run_id", res.RunID, "issue_id", comment.IssueID, "event", res.EventKind, "comment_id", comment.ID)

	unlock := o.locks.Lock(comment.IssueID)
	defer unlock()

	issue, err := o.tracker.GetIssue(ctx, comment.IssueID)
	if err != nil {
		return o.finish(ctx, res, log, fmt.Errorf("failed to fetch issue: %w", err))
	}
	if labels.StateOf(issue.LabelIDs, o.marker) != types.StateAwaitingInfo {
		return o.ignore(res, ReasonNotAwaitingInfo), nil
	}

	comments, err := o.tracker.ListComments(ctx, issue.ID)
	if err != nil {
		return o.finish(ctx, res, log, fmt.Errorf("failed to fetch comments: %w", err))
	}
	log.Info("re-triaging issue", "identifier", issue.Identifier, "comments", len(comments))

	plan, reconciled, err := o.plan(ctx, log, res, ai.RetriageContent(issue, comments, o.botMarker))
	if err != nil {
		return o.finish(ctx, res, log, err)
	}

	if reconciled.NeedsClarification {
		// The marker label is already present
		if err := o.requestClarification(ctx, res, issue.ID, reconciled, false); err != nil {
			return o.finish(ctx, res, log, err)
		}
		log.Info("further clarification requested", "comment_id", res.CommentID)
		return o.finish(ctx, res, log, nil)
	}

	update := reconciled.Update
	update.LabelIDs = labels.MergeRetriage(issue.LabelIDs, o.marker, update.LabelIDs)
	teamID := issue.TeamID
	if plan.TeamID != nil {
		teamID = *plan.TeamID
	}

	if err := o.complete(ctx, log, res, issue.ID, teamID, update, reconciled.Subtasks); err != nil {
		return o.finish(ctx, res, log, err)
	}
	if err := o.dispatcher.AddReaction(ctx, issue.ID, o.emoji); err != nil {
		return o.finish(ctx, res, log, err)
	}

	res.Outcome = types.OutcomeTriaged
	res.State = types.StateTriaged
	log.Info("issue re-triaged", "subtasks", len(res.Subtasks))
	return o.finish(ctx, res, log, nil)
}

// plan loads the knowledge base, generates a plan and reconciles it
func (o *Orchestrator) plan(ctx context.Context, log *slog.Logger, res *Result, content string) (*types.TriagePlan, *Reconciled, error) {
	knowledge, err := o.kb.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(knowledge.Teams) == 0 {
		log.Warn("team knowledge base is empty")
	}

	plan, err := o.planner.GeneratePlan(ctx, o.systemPrompt, knowledge, content)
	if err != nil {
		return nil, nil, err
	}
	res.Plan = plan

	reconciled, err := Reconcile(plan, knowledge.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ai.ErrInvalidPlan, err)
	}
	if len(reconciled.DroppedLabels) > 0 {
		log.Warn("dropped labels not in knowledge base", "labels", reconciled.DroppedLabels)
	}
	if reconciled.OffScaleEstimate {
		log.Warn("estimate is not a Fibonacci step", "estimate", *reconciled.Update.Estimate)
	}
	if plan.TeamID != nil && !knowledge.Teams.HasTeam(*plan.TeamID) {
		// Applied as given; team IDs are not validated against the knowledge base
		log.Warn("plan team not in knowledge base", "team_id", *plan.TeamID)
	}
	return plan, reconciled, nil
}

// requestClarification posts the question and, on the first round, attaches
// the awaiting-info label
func (o *Orchestrator) requestClarification(ctx context.Context, res *Result, issueID string, r *Reconciled, addLabel bool) error {
	id, err := o.dispatcher.CreateComment(ctx, issueID, o.withBotMarker(r.ClarificationComment))
	if err != nil {
		return err
	}
	res.CommentID = id
	res.Outcome = types.OutcomeClarification

	if o.marker == "" {
		res.State = types.StateFresh
		return nil
	}
	if addLabel {
		// State stays unset on failure so the issue is not recorded as
		// awaiting info without the label that routes its replies.
		if err := o.dispatcher.AddLabel(ctx, issueID, o.marker); err != nil {
			return err
		}
	}
	res.State = types.StateAwaitingInfo
	return nil
}

// complete applies the update and then creates subtasks
func (o *Orchestrator) complete(ctx context.Context, log *slog.Logger, res *Result, issueID, teamID string, update tracker.IssueUpdate, subtasks []string) error {
	if err := o.dispatcher.UpdateIssue(ctx, issueID, update); err != nil {
		return err
	}
	res.Update = &update

	if len(subtasks) == 0 {
		return nil
	}
	res.Subtasks = o.dispatcher.CreateSubtasks(ctx, issueID, teamID, subtasks)
	if failed := dispatch.FailedSubtasks(res.Subtasks); failed > 0 {
		log.Warn("some subtasks were not created", "failed", failed, "total", len(subtasks))
	}
	return nil
}

// withBotMarker makes sure a comment ends with the bot marker
func (o *Orchestrator) withBotMarker(body string) string {
	if strings.HasSuffix(strings.TrimSpace(body), o.botMarker) {
		return body
	}
	return body + o.botMarker
}

func (o *Orchestrator) newResult(kind, issueID string) *Result {
	return &Result{
		RunID:     uuid.NewString(),
		IssueID:   issueID,
		EventKind: kind,
		StartedAt: time.Now(),
	}
}

// ignore finishes an event that needed no processing. Nothing is persisted
// or published.
func (o *Orchestrator) ignore(res *Result, reason string) *Result {
	res.Outcome = types.OutcomeIgnored
	res.Reason = reason
	res.FinishedAt = time.Now()
	o.log.Debug("event ignored", "run_id", res.RunID, "event", res.EventKind, "issue_id", res.IssueID, "reason", reason)
	if o.observer != nil {
		o.observer.EventHandled(res.EventKind, res.Outcome, res.FinishedAt.Sub(res.StartedAt))
	}
	return res
}

// finish records, observes and publishes a processed event
func (o *Orchestrator) finish(ctx context.Context, res *Result, log *slog.Logger, err error) (*Result, error) {
	if log == nil {
		log = o.log.With("run_id", res.RunID, "event", res.EventKind)
	}
	res.FinishedAt = time.Now()
	if err != nil {
		res.Outcome = types.OutcomeFailed
		res.Error = err.Error()
		log.Error("event processing failed", "category", failureCategory(err), "error", err)
	}

	// Bookkeeping must not be lost to a canceled event context
	bg := context.WithoutCancel(ctx)
	if o.recorder != nil {
		run := &types.Run{
			ID:         res.RunID,
			IssueID:    res.IssueID,
			EventType:  res.EventKind,
			Outcome:    res.Outcome,
			Reason:     res.Reason,
			Error:      res.Error,
			Plan:       ai.EncodePlan(res.Plan),
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		if recErr := o.recorder.RecordRun(bg, run); recErr != nil {
			log.Warn("failed to record run", "error", recErr)
		}
		if res.State != "" && res.IssueID != "" {
			if recErr := o.recorder.SetIssueState(bg, res.IssueID, res.State); recErr != nil {
				log.Warn("failed to record issue state", "error", recErr)
			}
		}
	}
	if o.observer != nil {
		o.observer.EventHandled(res.EventKind, res.Outcome, res.FinishedAt.Sub(res.StartedAt))
	}
	if o.notifier != nil {
		if pubErr := o.notifier.Publish(bg, res); pubErr != nil {
			log.Warn("failed to publish outcome", "error", pubErr)
		}
	}
	return res, err
}

// failureCategory names the error taxonomy bucket for operator logs
func failureCategory(err error) string {
	switch {
	case errors.Is(err, kb.ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, ai.ErrPlanGenerationFailed):
		return "plan_generation_failed"
	case errors.Is(err, dispatch.ErrMutationFailed):
		return "mutation_failed"
	case errors.Is(err, events.ErrInvalidEvent):
		return "invalid_event"
	default:
		return "other"
	}
}
