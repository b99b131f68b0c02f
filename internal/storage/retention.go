package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/steveyegge/triage/internal/config"
)

// RunPruner deletes old run records
type RunPruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

// RunRetention prunes the run audit on cfg.CleanupInterval until ctx is done.
// It prunes once immediately. Failures are logged and retried next tick.
func RunRetention(ctx context.Context, p RunPruner, cfg config.RunRetentionConfig, log *slog.Logger) {
	if !cfg.CleanupEnabled {
		log.Info("run retention disabled")
		return
	}

	prune := func() {
		deleted, err := p.PruneRuns(ctx, cfg.Cutoff(time.Now()), cfg.CleanupBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("run pruning failed", "error", err, "deleted", deleted)
			}
			return
		}
		if deleted > 0 {
			log.Info("pruned old runs", "deleted", deleted, "retention_days", cfg.RetentionDays)
		}
	}

	prune()
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
