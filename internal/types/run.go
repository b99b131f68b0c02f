package types

import "time"

// IssueState is the triage state of an issue, derived from label presence.
type IssueState string

const (
	// StateFresh means the issue carries no awaiting-info marker
	StateFresh IssueState = "fresh"
	// StateAwaitingInfo means a clarification was requested and the marker is present
	StateAwaitingInfo IssueState = "awaiting_info"
	// StateTriaged means the last plan completed triage
	StateTriaged IssueState = "triaged"
)

// IsValid checks if the state value is valid
func (s IssueState) IsValid() bool {
	switch s {
	case StateFresh, StateAwaitingInfo, StateTriaged:
		return true
	}
	return false
}

// Outcome is the terminal result of processing one event.
type Outcome string

const (
	OutcomeIgnored       Outcome = "ignored"
	OutcomeClarification Outcome = "clarification"
	OutcomeTriaged       Outcome = "triaged"
	OutcomeFailed        Outcome = "failed"
)

// Run is the audit record of one processed event.
type Run struct {
	ID         string    `json:"id"`
	IssueID    string    `json:"issue_id"`
	EventType  string    `json:"event_type"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Plan       string    `json:"plan,omitempty"` // JSON-encoded TriagePlan
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// IssueStateRecord is the last known triage state of an issue.
type IssueStateRecord struct {
	IssueID   string     `json:"issue_id"`
	State     IssueState `json:"state"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunFilter narrows a run listing
type RunFilter struct {
	IssueID string  // Only runs for this issue (empty = all)
	Outcome Outcome // Only runs with this outcome (empty = all)
	Limit   int     // Maximum rows returned (0 = 50)
}
