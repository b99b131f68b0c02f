package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityIsValid(t *testing.T) {
	for _, p := range AllPriorities {
		assert.True(t, p.IsValid(), "%q should be valid", p)
	}
	assert.False(t, Priority("urgent").IsValid())
	assert.False(t, Priority("").IsValid())
}

func TestCommentHasMarker(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		marker string
		want   bool
	}{
		{"suffix marker", "Can you clarify X?<!-- bot -->", "<!-- bot -->", true},
		{"marker in middle", "a <!-- bot --> b", "<!-- bot -->", true},
		{"no marker", "Just a human reply", "<!-- bot -->", false},
		{"empty marker never matches", "anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Comment{Body: tt.body}
			assert.Equal(t, tt.want, c.HasMarker(tt.marker))
		})
	}
}

func TestLabelKnowledgeBaseIDs(t *testing.T) {
	var nilKB *LabelKnowledgeBase
	assert.Empty(t, nilKB.IDs())

	kb := &LabelKnowledgeBase{Nodes: []Label{{ID: "a", Name: "Bug"}, {ID: "", Name: "blank"}, {ID: "b"}}}
	ids := kb.IDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")
}

func TestIssueValidate(t *testing.T) {
	assert.Error(t, (&Issue{Title: "x"}).Validate())
	assert.Error(t, (&Issue{ID: "1", Title: "  "}).Validate())
	assert.NoError(t, (&Issue{ID: "1", Title: "Fix login"}).Validate())
}

func TestTeamKnowledgeBaseHasTeam(t *testing.T) {
	kb := TeamKnowledgeBase{"team-id-1": {Name: "Frontend", Keywords: []string{"bug"}}}
	assert.True(t, kb.HasTeam("team-id-1"))
	assert.False(t, kb.HasTeam("team-id-2"))
}
