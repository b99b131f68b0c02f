package sqlite

import (
	"context"
	"fmt"
	"time"
)

// PruneRuns deletes runs that finished before cutoff.
// Deletions are batched (batchSize runs per statement) to keep locks short.
func (s *SQLiteStorage) PruneRuns(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0
	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM triage_runs
			WHERE id IN (
				SELECT id FROM triage_runs
				WHERE finished_at < ?
				ORDER BY finished_at ASC
				LIMIT ?
			)
		`, cutoff.UTC(), batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to prune runs: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(affected)

		if affected < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}
