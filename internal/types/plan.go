package types

// Priority is the human-readable priority the model assigns.
type Priority string

const (
	PriorityUrgent     Priority = "Urgent"
	PriorityHigh       Priority = "High"
	PriorityMedium     Priority = "Medium"
	PriorityLow        Priority = "Low"
	PriorityNoPriority Priority = "No priority"
)

// AllPriorities lists the accepted priority values in schema order.
var AllPriorities = []Priority{
	PriorityUrgent,
	PriorityHigh,
	PriorityMedium,
	PriorityLow,
	PriorityNoPriority,
}

// IsValid checks if the priority value is one of the accepted names
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow, PriorityNoPriority:
		return true
	}
	return false
}

// Rewrite carries replacement content for an issue.
type Rewrite struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TriagePlan is the structured decision the model returns for an issue.
//
// When NeedsClarification is true only ClarificationComment is meaningful;
// every other field must be ignored by the caller.
type TriagePlan struct {
	Rewrite              *Rewrite  `json:"rewrite,omitempty"`
	Priority             *Priority `json:"priority,omitempty"`
	TeamID               *string   `json:"teamId,omitempty"`
	LabelIDs             []string  `json:"labelIds,omitempty"`
	Estimate             *float64  `json:"estimate,omitempty"`
	AssigneeID           *string   `json:"assigneeId,omitempty"`
	Subtasks             []string  `json:"subtasks,omitempty"`
	NeedsClarification   bool      `json:"needsClarification"`
	ClarificationComment string    `json:"clarificationComment,omitempty"`
}

// FibonacciEstimates are the estimate steps the prompt asks the model to use.
// Off-scale estimates are applied but logged.
var FibonacciEstimates = []int{0, 1, 2, 3, 5, 8, 13}
