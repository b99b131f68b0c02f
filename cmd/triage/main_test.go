package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/steveyegge/triage/internal/config"
	"github.com/steveyegge/triage/internal/dispatch"
	"github.com/steveyegge/triage/internal/events"
	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/tracker"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.Database.Path = filepath.Join(t.TempDir(), "triage.db")
	return c
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestCheckDocument(t *testing.T) {
	withConfig(t, config.Default())

	tests := []struct {
		name    string
		key     string
		doc     string
		wantErr bool
	}{
		{"teams", "teams", `{"t1":{"name":"Core","keywords":["api"],"domains":["backend"]}}`, false},
		{"teams unknown field", "teams", `{"t1":{"name":"Core","owner":"x"}}`, true},
		{"teams wrong shape", "teams", `[1,2]`, true},
		{"labels", "labels", `{"nodes":[{"id":"l1","name":"Bug"}]}`, false},
		{"labels missing id", "labels", `{"nodes":[{"name":"Bug"}]}`, true},
		{"labels wrong shape", "labels", `{"labels":[]}`, true},
		{"other key valid", "notes", `{"anything":true}`, false},
		{"other key invalid", "notes", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkDocument(tt.key, []byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpenKBStore(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite shares the database and accepts writes", func(t *testing.T) {
		c := testConfig(t)
		a, err := newApp(ctx, c, nil)
		require.NoError(t, err)
		defer a.Close()

		store, err := a.writableKB()
		require.NoError(t, err)
		require.NoError(t, store.PutDocument(ctx, "labels", []byte(`{"nodes":[{"id":"l1","name":"Bug"}]}`)))

		doc, err := a.db.Get(ctx, "labels")
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes":[{"id":"l1","name":"Bug"}]}`, string(doc))
	})

	t.Run("file backend is read-only", func(t *testing.T) {
		c := testConfig(t)
		c.KB.Backend = config.KBBackendFile
		c.KB.Dir = t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(c.KB.Dir, "teams.yaml"), []byte("t1:\n  name: Core\n"), 0644))

		a, err := newApp(ctx, c, nil)
		require.NoError(t, err)
		defer a.Close()

		_, err = a.writableKB()
		assert.Error(t, err)

		doc, err := a.kbStore.Get(ctx, "teams")
		require.NoError(t, err)
		assert.JSONEq(t, `{"t1":{"name":"Core"}}`, string(doc))
	})

	t.Run("file backend with missing dir", func(t *testing.T) {
		c := testConfig(t)
		c.KB.Backend = config.KBBackendFile
		c.KB.Dir = filepath.Join(t.TempDir(), "missing")

		_, err := newApp(ctx, c, nil)
		assert.Error(t, err)
	})
}

func TestAccessorUsesConfiguredKeys(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	c.KB.TeamsKey = "routing"
	c.KB.LabelsKey = "workspace-labels"

	a, err := newApp(ctx, c, nil)
	require.NoError(t, err)
	defer a.Close()

	store, err := a.writableKB()
	require.NoError(t, err)
	require.NoError(t, store.PutDocument(ctx, "routing", []byte(`{"t1":{"name":"Core"}}`)))
	require.NoError(t, store.PutDocument(ctx, "workspace-labels", []byte(`{"nodes":[]}`)))

	knowledge, err := a.accessor()
	require.NoError(t, err)
	loaded, err := knowledge.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Teams.HasTeam("t1"))

	var out bytes.Buffer
	printKnowledgeBase(&out, loaded)
	assert.Contains(t, out.String(), "Teams (1):")
	assert.Contains(t, out.String(), "t1 Core")
	assert.Contains(t, out.String(), "Labels (0):")
}

func TestAccessorMissingDocument(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	knowledge, err := a.accessor()
	require.NoError(t, err)
	_, err = knowledge.Load(ctx)
	assert.ErrorIs(t, err, kb.ErrConfigurationMissing)
}

func TestReadEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"create","type":"Issue","data":{"id":"i1","title":"Crash"}}`), 0644))

	ev, err := readEvent(path)
	require.NoError(t, err)
	assert.Equal(t, events.ActionCreate, ev.Action)
	assert.True(t, ev.IsTriageTrigger())

	require.NoError(t, os.WriteFile(path, []byte(`{"type":"Issue"}`), 0644))
	_, err = readEvent(path)
	assert.ErrorIs(t, err, events.ErrInvalidEvent)

	_, err = readEvent(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	team, priority, estimate := "team-1", 2, 3
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	res := &triage.Result{
		RunID:     "run-1",
		IssueID:   "issue-1",
		EventKind: "create:Issue",
		Outcome:   types.OutcomeTriaged,
		State:     types.StateTriaged,
		Update: &tracker.IssueUpdate{
			TeamID:   &team,
			Priority: &priority,
			Estimate: &estimate,
			LabelIDs: []string{"l1"},
		},
		Subtasks: []dispatch.SubtaskResult{
			{Title: "Write repro", ID: "sub-1"},
			{Title: "Fix", Err: errors.New("boom")},
		},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}

	var out bytes.Buffer
	printResult(&out, res)
	got := out.String()
	assert.Contains(t, got, "triaged create:Issue for issue-1")
	assert.Contains(t, got, "Team: team-1")
	assert.Contains(t, got, "Priority: 2")
	assert.Contains(t, got, "Estimate: 3")
	assert.Contains(t, got, "Labels: [l1]")
	assert.Contains(t, got, `Subtask "Write repro": sub-1`)
	assert.Contains(t, got, `Subtask "Fix": failed: boom`)
	assert.Contains(t, got, "Run: run-1 (1.5s)")

	out.Reset()
	printResult(&out, nil)
	assert.Empty(t, out.String())
}

func TestPrintRun(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printRun(&out, &types.Run{
		ID:         "r1",
		IssueID:    "issue-1",
		EventType:  "create:Comment",
		Outcome:    types.OutcomeFailed,
		Error:      "plan generation failed\nattempt 3: timeout",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	})
	got := out.String()
	assert.Contains(t, got, "failed")
	assert.Contains(t, got, "issue-1")
	assert.Contains(t, got, "error: plan generation failed ...")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one"))
	assert.Equal(t, "one ...", firstLine("one\ntwo"))
}

func TestPrintLabelCheck(t *testing.T) {
	var out bytes.Buffer
	printLabelCheck(&out, []string{"l1", "made-up"}, []string{"l1"})
	got := out.String()
	assert.Contains(t, got, "1 of 2 kept")
	assert.Contains(t, got, "kept l1")
	assert.Contains(t, got, "dropped made-up")
}
