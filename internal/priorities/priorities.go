// Package priorities maps the model's priority names onto the tracker's
// numeric priority scale.
package priorities

import (
	"fmt"

	"github.com/steveyegge/triage/internal/types"
)

// Tracker priority scale. 0 means "no priority", 1 is the most urgent.
const (
	NoPriority = 0
	Urgent     = 1
	High       = 2
	Medium     = 3
	Low        = 4
)

var trackerScale = map[types.Priority]int{
	types.PriorityNoPriority: NoPriority,
	types.PriorityUrgent:     Urgent,
	types.PriorityHigh:       High,
	types.PriorityMedium:     Medium,
	types.PriorityLow:        Low,
}

// ToTracker converts a priority name to the tracker's numeric value.
func ToTracker(p types.Priority) (int, error) {
	if !p.IsValid() {
		return 0, fmt.Errorf("unknown priority %q", p)
	}
	return trackerScale[p], nil
}

// FromPlan converts an optional plan priority.
// A nil priority returns nil so the mutation leaves the field untouched
// instead of resetting it to NoPriority.
func FromPlan(p *types.Priority) (*int, error) {
	if p == nil {
		return nil, nil
	}
	v, err := ToTracker(*p)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
