// Package labels derives the triage state of an issue from its labels.
//
// State Flow:
// - fresh → awaiting_info when a plan asks for clarification (marker label added)
// - awaiting_info → triaged when a later plan completes triage (marker label removed)
// - fresh → triaged when the first plan completes triage
//
// The awaiting-info marker label is the only persisted signal; nothing else
// is stored in the tracker.
package labels

import "github.com/steveyegge/triage/internal/types"

// StateOf returns the state implied by a label set.
// With no marker configured every issue is fresh.
func StateOf(labelIDs []string, marker string) types.IssueState {
	if marker != "" && Contains(labelIDs, marker) {
		return types.StateAwaitingInfo
	}
	return types.StateFresh
}

// Contains reports whether label is present in labelIDs.
func Contains(labelIDs []string, label string) bool {
	for _, l := range labelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// MergeRetriage computes the label set applied when a re-triage completes:
// the current labels minus the marker, unioned with the new labels.
// Duplicates collapse; current labels keep their order, new ones follow.
func MergeRetriage(current []string, marker string, newLabels []string) []string {
	seen := make(map[string]struct{}, len(current)+len(newLabels))
	merged := make([]string, 0, len(current)+len(newLabels))
	add := func(l string) {
		if l == "" || l == marker {
			return
		}
		if _, ok := seen[l]; ok {
			return
		}
		seen[l] = struct{}{}
		merged = append(merged, l)
	}
	for _, l := range current {
		add(l)
	}
	for _, l := range newLabels {
		add(l)
	}
	return merged
}
