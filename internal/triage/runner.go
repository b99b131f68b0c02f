package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/steveyegge/triage/internal/events"
)

// ErrRunnerClosed is returned by Submit after Shutdown
var ErrRunnerClosed = errors.New("runner is shut down")

// DefaultEventTimeout bounds the processing of one event
const DefaultEventTimeout = 5 * time.Minute

// EventHandler processes one event
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *events.Event) (*Result, error)
}

// Runner processes each submitted event in its own goroutine, detached from
// the request that delivered it. Failures and panics are logged and never
// reach the submitter.
type Runner struct {
	handler EventHandler
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// RunnerConfig holds runner configuration
type RunnerConfig struct {
	EventTimeout time.Duration // Default: DefaultEventTimeout
	Logger       *slog.Logger
}

// NewRunner creates a runner over handler
func NewRunner(handler EventHandler, cfg RunnerConfig) *Runner {
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = DefaultEventTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		handler: handler,
		timeout: cfg.EventTimeout,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts processing ev in the background and returns immediately
func (r *Runner) Submit(ev *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}

	r.wg.Add(1)
	go r.process(ev)
	return nil
}

func (r *Runner) process(ev *events.Event) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic while processing event",
				"event", ev.Kind(),
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	// Errors are already logged and recorded by the handler
	_, _ = r.handler.HandleEvent(ctx, ev)
}

// Shutdown stops accepting events and waits for in-flight ones. When ctx
// expires first, in-flight events are canceled and ctx.Err() is returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
