package kb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/steveyegge/triage/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// memStore is an in-memory Store that counts reads
type memStore struct {
	mu    sync.Mutex
	docs  map[string]string
	reads int
	err   error
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(doc), nil
}

const teamsDoc = `{"team-id-1": {"name": "Frontend", "keywords": ["bug", "ui"], "domains": ["web"]}}`
const labelsDoc = `{"nodes": [{"id": "label-id-bug", "name": "Bug"}, {"id": "label-id-feature", "name": "Feature"}]}`

func newTestAccessor(t *testing.T, store Store) *Accessor {
	t.Helper()
	a, err := New(Config{Store: store})
	require.NoError(t, err)
	return a
}

func TestAccessor_Load(t *testing.T) {
	store := &memStore{docs: map[string]string{"teams": teamsDoc, "labels": labelsDoc}}
	a := newTestAccessor(t, store)

	kb, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Frontend", kb.Teams["team-id-1"].Name)
	assert.Equal(t, []string{"bug", "ui"}, kb.Teams["team-id-1"].Keywords)
	assert.Len(t, kb.Labels.Nodes, 2)
}

func TestAccessor_MissingDocument(t *testing.T) {
	tests := []struct {
		name string
		docs map[string]string
	}{
		{"no teams", map[string]string{"labels": labelsDoc}},
		{"no labels", map[string]string{"teams": teamsDoc}},
		{"empty teams", map[string]string{"teams": "", "labels": labelsDoc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAccessor(t, &memStore{docs: tt.docs})
			_, err := a.Load(context.Background())
			assert.ErrorIs(t, err, ErrConfigurationMissing)
		})
	}
}

func TestAccessor_StoreErrorIsNotConfigurationMissing(t *testing.T) {
	a := newTestAccessor(t, &memStore{err: errors.New("connection refused")})
	_, err := a.LoadTeams(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigurationMissing)
}

func TestAccessor_MalformedDocuments(t *testing.T) {
	store := &memStore{docs: map[string]string{"teams": "[1,2", "labels": `{"nodes": "oops"}`}}
	a := newTestAccessor(t, store)

	_, err := a.LoadTeams(context.Background())
	assert.Error(t, err, "malformed team document is fatal")

	labels, err := a.LoadLabels(context.Background())
	require.NoError(t, err, "malformed label document degrades to empty")
	assert.Empty(t, labels.Nodes)

	valid, err := a.ValidateLabelIDs(context.Background(), []string{"label-id-bug"})
	require.NoError(t, err)
	assert.Empty(t, valid)
}

func TestAccessor_Caches(t *testing.T) {
	store := &memStore{docs: map[string]string{"teams": teamsDoc, "labels": labelsDoc}}
	a := newTestAccessor(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Load(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.reads, "one read per document")

	a.Invalidate()
	_, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, store.reads)
}

func TestAccessor_InvalidateOnSignal(t *testing.T) {
	store := &memStore{docs: map[string]string{"teams": teamsDoc, "labels": labelsDoc}}
	a := newTestAccessor(t, store)
	ctx, cancel := context.WithCancel(context.Background())

	reload := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		a.InvalidateOn(ctx, reload)
		close(done)
	}()

	_, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)

	// The second send on the unbuffered channel only completes once the
	// first signal has been handled.
	reload <- os.Interrupt
	reload <- os.Interrupt

	_, err = a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, store.reads)

	cancel()
	<-done
}

func TestAccessor_CacheDisabled(t *testing.T) {
	store := &memStore{docs: map[string]string{"teams": teamsDoc}}
	a, err := New(Config{Store: store, CacheTTL: -1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := a.LoadTeams(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.reads)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestValidateLabelIDs(t *testing.T) {
	labels := &types.LabelKnowledgeBase{Nodes: []types.Label{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	tests := []struct {
		name       string
		kb         *types.LabelKnowledgeBase
		candidates []string
		want       []string
	}{
		{"keeps order", labels, []string{"c", "a"}, []string{"c", "a"}},
		{"drops unknown", labels, []string{"a", "fake", "b"}, []string{"a", "b"}},
		{"empty input", labels, nil, []string{}},
		{"empty kb", &types.LabelKnowledgeBase{}, []string{"a"}, []string{}},
		{"nil kb", nil, []string{"a"}, []string{}},
		{"keeps duplicates", labels, []string{"a", "a"}, []string{"a", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateLabelIDs(tt.kb, tt.candidates))
		})
	}
}

func TestValidateLabelIDs_Property(t *testing.T) {
	idGen := rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f"})

	rapid.Check(t, func(t *rapid.T) {
		known := rapid.SliceOf(idGen).Draw(t, "known")
		candidates := rapid.SliceOf(idGen).Draw(t, "candidates")

		labels := &types.LabelKnowledgeBase{}
		for _, id := range known {
			labels.Nodes = append(labels.Nodes, types.Label{ID: id})
		}
		valid := ValidateLabelIDs(labels, candidates)

		// valid must be a subsequence of candidates containing only known IDs
		knownSet := labels.IDs()
		i := 0
		for _, v := range valid {
			if _, ok := knownSet[v]; !ok {
				t.Fatalf("unknown id %q survived validation", v)
			}
			for i < len(candidates) && candidates[i] != v {
				i++
			}
			if i == len(candidates) {
				t.Fatalf("%v is not a subsequence of %v", valid, candidates)
			}
			i++
		}
		// every known candidate is kept
		count := 0
		for _, c := range candidates {
			if _, ok := knownSet[c]; ok {
				count++
			}
		}
		if count != len(valid) {
			t.Fatalf("expected %d valid ids, got %v", count, valid)
		}
	})
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.json"), []byte(`{
  // exported from the workspace
  "nodes": [{"id": "label-id-bug", "name": "Bug"},],
}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "teams.yaml"), []byte(`
team-id-1:
  name: Frontend
  keywords: [bug, ui]
  domains: [web]
`), 0644))

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	a := newTestAccessor(t, store)

	kb, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Frontend", kb.Teams["team-id-1"].Name)
	require.Len(t, kb.Labels.Nodes, 1)
	assert.Equal(t, "label-id-bug", kb.Labels.Nodes[0].ID)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestNewFileStore_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
	_, err := NewFileStore(f)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	out, err := Normalize("teams.yml", []byte("t1:\n  name: Core\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"t1":{"name":"Core"}}`, string(out))

	out, err = Normalize("labels.jsonc", []byte(`{"nodes": [], /* none yet */}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": []}`, string(out))

	_, err = Normalize("teams.yaml", []byte("a: [unclosed"))
	assert.Error(t, err)
}
