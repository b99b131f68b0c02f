package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/triage/internal/config"
	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) PruneRuns(_ context.Context, cutoff time.Time, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunRetention_PrunesImmediatelyAndStops(t *testing.T) {
	p := &fakePruner{}
	cfg := config.DefaultRunRetentionConfig()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunRetention(ctx, p, cfg, slog.Default())
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -cfg.RetentionDays), p.cutoffs[0], time.Minute)
}

func TestRunRetention_Disabled(t *testing.T) {
	p := &fakePruner{}
	cfg := config.DefaultRunRetentionConfig()
	cfg.CleanupEnabled = false

	RunRetention(context.Background(), p, cfg, slog.Default())
	assert.Zero(t, p.count())
}

func TestRunRetention_ErrorsDoNotStopLoop(t *testing.T) {
	p := &fakePruner{err: errors.New("locked")}
	cfg := config.DefaultRunRetentionConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go RunRetention(ctx, p, cfg, slog.Default())
	assert.Eventually(t, func() bool { return p.count() >= 1 }, time.Second, 5*time.Millisecond)
}
