// Package storage opens the service database that holds knowledge base
// documents, the per-event run audit and the last known state of each issue.
package storage

import (
	"context"
	"time"

	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/storage/sqlite"
	"github.com/steveyegge/triage/internal/types"
)

// Storage defines the interface for the service database
type Storage interface {
	// Knowledge base documents
	kb.Store
	PutDocument(ctx context.Context, key string, value []byte) error

	// Run audit
	RecordRun(ctx context.Context, run *types.Run) error
	GetRuns(ctx context.Context, filter types.RunFilter) ([]*types.Run, error)
	PruneRuns(ctx context.Context, cutoff time.Time, batchSize int) (int, error)

	// Issue state
	SetIssueState(ctx context.Context, issueID string, state types.IssueState) error
	GetIssueState(ctx context.Context, issueID string) (*types.IssueStateRecord, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".triage/triage.db"
	Path string
}

// DefaultPath is where the database lives when no path is configured
const DefaultPath = ".triage/triage.db"

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{Path: DefaultPath}
}

// NewStorage opens the SQLite run store, creating its directory and schema.
// ctx bounds the initial connection and schema setup.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	db, err := sqlite.New(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
