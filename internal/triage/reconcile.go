package triage

import (
	"fmt"
	"math"
	"slices"

	"github.com/steveyegge/triage/internal/ai"
	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/priorities"
	"github.com/steveyegge/triage/internal/tracker"
	"github.com/steveyegge/triage/internal/types"
)

// Reconciled is a plan made ready for dispatch: labels validated against the
// label knowledge base and priority mapped to the tracker scale.
type Reconciled struct {
	Update               tracker.IssueUpdate
	Subtasks             []string
	NeedsClarification   bool
	ClarificationComment string
	DroppedLabels        []string // Model labels missing from the knowledge base
	OffScaleEstimate     bool     // Rounded estimate is not a Fibonacci step
}

// Reconcile validates and maps a plan. A clarification plan yields an empty
// update: its other fields are ignored.
func Reconcile(plan *types.TriagePlan, labelKB *types.LabelKnowledgeBase) (*Reconciled, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if plan.NeedsClarification {
		return &Reconciled{
			NeedsClarification:   true,
			ClarificationComment: plan.ClarificationComment,
		}, nil
	}

	priority, err := priorities.FromPlan(plan.Priority)
	if err != nil {
		return nil, err
	}

	r := &Reconciled{Subtasks: nonEmpty(plan.Subtasks)}
	r.Update.Priority = priority
	r.Update.TeamID = plan.TeamID
	r.Update.AssigneeID = plan.AssigneeID
	if plan.Rewrite != nil {
		r.Update.Title = plan.Rewrite.Title
		r.Update.Description = plan.Rewrite.Description
	}
	if plan.Estimate != nil {
		e := *plan.Estimate
		if math.IsNaN(e) || e < 0 || e > ai.MaxEstimate {
			return nil, fmt.Errorf("estimate %v out of range [0, %d]", e, ai.MaxEstimate)
		}
		estimate := int(math.Round(e))
		r.Update.Estimate = &estimate
		r.OffScaleEstimate = !slices.Contains(types.FibonacciEstimates, estimate)
	}

	valid := kb.ValidateLabelIDs(labelKB, plan.LabelIDs)
	if len(valid) > 0 {
		r.Update.LabelIDs = valid
	}
	if len(valid) < len(plan.LabelIDs) {
		known := labelKB.IDs()
		for _, id := range plan.LabelIDs {
			if _, ok := known[id]; !ok {
				r.DroppedLabels = append(r.DroppedLabels, id)
			}
		}
	}
	return r, nil
}

func nonEmpty(titles []string) []string {
	var out []string
	for _, t := range titles {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
