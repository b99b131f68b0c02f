package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/steveyegge/triage/internal/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore connects to the database named by TRIAGE_TEST_PG_DSN
func setupTestStore(t *testing.T) *DocumentStore {
	dsn := os.Getenv("TRIAGE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TRIAGE_TEST_PG_DSN not set, skipping PostgreSQL tests")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.DSN = dsn
	store, err := New(ctx, cfg)
	require.NoError(t, err)

	_, err = store.pool.Exec(ctx, `DELETE FROM kb_documents WHERE key LIKE 'test-%'`)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDocumentStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "test-labels")
	assert.ErrorIs(t, err, kb.ErrNotFound)

	require.NoError(t, store.PutDocument(ctx, "test-labels", []byte(`{"nodes":[{"id":"a","name":"A"}]}`)))
	doc, err := store.Get(ctx, "test-labels")
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[{"id":"a","name":"A"}]}`, string(doc))

	assert.Error(t, store.PutDocument(ctx, "test-bad", []byte(`not json`)))
}

func TestNew_BadDSN(t *testing.T) {
	_, err := New(context.Background(), &Config{DSN: "::not a dsn::"})
	assert.Error(t, err)
}
