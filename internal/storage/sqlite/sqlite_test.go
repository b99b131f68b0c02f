package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "nested", "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNew_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := New(ctx, filepath.Join(t.TempDir(), "triage.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store)
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	_, err := store.Get(ctx, "teams")
	assert.ErrorIs(t, err, kb.ErrNotFound)

	require.NoError(t, store.PutDocument(ctx, "teams", []byte(`{"a":{}}`)))
	doc, err := store.Get(ctx, "teams")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{}}`, string(doc))

	require.NoError(t, store.PutDocument(ctx, "teams", []byte(`{"b":{}}`)))
	doc, err = store.Get(ctx, "teams")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":{}}`, string(doc), "put replaces existing document")
}

func TestDocuments_ThroughAccessor(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.PutDocument(ctx, "teams", []byte(`{"team-id-1":{"name":"Frontend","keywords":["bug"]}}`)))

	a, err := kb.New(kb.Config{Store: store})
	require.NoError(t, err)

	teams, err := a.LoadTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Frontend", teams["team-id-1"].Name)

	_, err = a.LoadLabels(ctx)
	assert.ErrorIs(t, err, kb.ErrConfigurationMissing)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	runs := []*types.Run{
		{ID: "r1", IssueID: "issue-1", EventType: "create:Issue", Outcome: types.OutcomeClarification, StartedAt: base, FinishedAt: base.Add(time.Second)},
		{ID: "r2", IssueID: "issue-1", EventType: "create:Comment", Outcome: types.OutcomeTriaged, Plan: `{"needsClarification":false}`, StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute)},
		{ID: "r3", IssueID: "issue-2", EventType: "create:Issue", Outcome: types.OutcomeFailed, Error: "plan generation failed", StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		require.NoError(t, store.RecordRun(ctx, r))
	}

	all, err := store.GetRuns(ctx, types.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID, "newest first")

	forIssue, err := store.GetRuns(ctx, types.RunFilter{IssueID: "issue-1"})
	require.NoError(t, err)
	require.Len(t, forIssue, 2)
	assert.Equal(t, types.OutcomeTriaged, forIssue[0].Outcome)
	assert.Equal(t, `{"needsClarification":false}`, forIssue[0].Plan)

	failed, err := store.GetRuns(ctx, types.RunFilter{Outcome: types.OutcomeFailed, Limit: 1})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "plan generation failed", failed[0].Error)

	assert.Error(t, store.RecordRun(ctx, &types.Run{}), "id is required")
}

func TestIssueState(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rec, err := store.GetIssueState(ctx, "issue-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, store.SetIssueState(ctx, "issue-1", types.StateAwaitingInfo))
	require.NoError(t, store.SetIssueState(ctx, "issue-1", types.StateTriaged))

	rec, err = store.GetIssueState(ctx, "issue-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, types.StateTriaged, rec.State)

	assert.Error(t, store.SetIssueState(ctx, "issue-1", "bogus"))
}

func TestPruneRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		finished := cutoff.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, store.RecordRun(ctx, &types.Run{
			ID: fmt.Sprintf("old-%d", i), EventType: "create:Issue", Outcome: types.OutcomeTriaged,
			StartedAt: finished, FinishedAt: finished,
		}))
	}
	require.NoError(t, store.RecordRun(ctx, &types.Run{
		ID: "new", EventType: "create:Issue", Outcome: types.OutcomeTriaged,
		StartedAt: cutoff.Add(time.Hour), FinishedAt: cutoff.Add(time.Hour),
	}))

	deleted, err := store.PruneRuns(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	remaining, err := store.GetRuns(ctx, types.RunFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].ID)

	_, err = store.PruneRuns(ctx, cutoff, 0)
	assert.Error(t, err)
}
