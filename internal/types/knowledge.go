package types

// TeamRule describes how issues are routed to one team.
type TeamRule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Domains  []string `json:"domains"`
}

// TeamKnowledgeBase maps team ID to its routing rule.
type TeamKnowledgeBase map[string]TeamRule

// HasTeam reports whether id is a known team.
func (t TeamKnowledgeBase) HasTeam(id string) bool {
	_, ok := t[id]
	return ok
}

// Label is one workspace label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LabelKnowledgeBase is the authoritative label set, stored in the tracker's
// connection shape ({"nodes": [...]}).
type LabelKnowledgeBase struct {
	Nodes []Label `json:"nodes"`
}

// IDs returns the set of known label IDs. A nil knowledge base yields an empty set.
func (l *LabelKnowledgeBase) IDs() map[string]struct{} {
	ids := make(map[string]struct{})
	if l == nil {
		return ids
	}
	for _, n := range l.Nodes {
		if n.ID != "" {
			ids[n.ID] = struct{}{}
		}
	}
	return ids
}

// KnowledgeBase bundles the reference data handed to the plan generator.
type KnowledgeBase struct {
	Teams  TeamKnowledgeBase   `json:"teams"`
	Labels *LabelKnowledgeBase `json:"labels"`
}
