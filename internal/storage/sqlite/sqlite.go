package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/types"
)

// SQLiteStorage stores knowledge base documents and the triage audit trail
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL lets the runs command read while the server writes
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Get returns the knowledge base document stored under key.
// It returns kb.ErrNotFound when the key is absent.
func (s *SQLiteStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kb_documents WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kb.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	return []byte(value), nil
}

// PutDocument creates or replaces a knowledge base document
func (s *SQLiteStorage) PutDocument(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_documents (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", key, err)
	}
	return nil
}

// RecordRun stores the audit record of one processed event
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triage_runs (id, issue_id, event_type, outcome, reason, error, plan, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.IssueID, run.EventType, string(run.Outcome), run.Reason, run.Error, run.Plan,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// GetRuns lists runs, newest first
func (s *SQLiteStorage) GetRuns(ctx context.Context, filter types.RunFilter) ([]*types.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, issue_id, event_type, outcome, reason, error, plan, started_at, finished_at
		FROM triage_runs
		WHERE (? = '' OR issue_id = ?) AND (? = '' OR outcome = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		filter.IssueID, filter.IssueID, string(filter.Outcome), string(filter.Outcome), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.Run
	for rows.Next() {
		var run types.Run
		var outcome string
		if err := rows.Scan(&run.ID, &run.IssueID, &run.EventType, &outcome, &run.Reason,
			&run.Error, &run.Plan, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Outcome = types.Outcome(outcome)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// SetIssueState records the last known triage state of an issue
func (s *SQLiteStorage) SetIssueState(ctx context.Context, issueID string, state types.IssueState) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid issue state: %s", state)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issue_states (issue_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(issue_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, issueID, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set state for %s: %w", issueID, err)
	}
	return nil
}

// GetIssueState returns the recorded state, or (nil, nil) if the issue was never seen
func (s *SQLiteStorage) GetIssueState(ctx context.Context, issueID string) (*types.IssueStateRecord, error) {
	var rec types.IssueStateRecord
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT issue_id, state, updated_at FROM issue_states WHERE issue_id = ?
	`, issueID).Scan(&rec.IssueID, &state, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state for %s: %w", issueID, err)
	}
	rec.State = types.IssueState(state)
	return &rec, nil
}
