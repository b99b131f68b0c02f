package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steveyegge/triage/internal/ai"
	"github.com/steveyegge/triage/internal/config"
	"github.com/steveyegge/triage/internal/dispatch"
	"github.com/steveyegge/triage/internal/kb"
	"github.com/steveyegge/triage/internal/metrics"
	"github.com/steveyegge/triage/internal/storage"
	"github.com/steveyegge/triage/internal/storage/postgres"
	"github.com/steveyegge/triage/internal/tracker"
	"github.com/steveyegge/triage/internal/triage"
)

// documentStore is a knowledge base store that accepts writes
type documentStore interface {
	kb.Store
	PutDocument(ctx context.Context, key string, value []byte) error
}

// app holds the long-lived dependencies of one process
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	db        storage.Storage
	kbStore   kb.Store
	knowledge *kb.Accessor // set by orchestrator
	metrics   *metrics.Metrics
	closers   []func() error
}

func openStorage(ctx context.Context, c *config.Config) (storage.Storage, error) {
	db, err := storage.NewStorage(ctx, &storage.Config{Path: c.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", c.Database.Path, err)
	}
	return db, nil
}

// newApp opens the database and the configured knowledge base store
func newApp(ctx context.Context, c *config.Config, log *slog.Logger) (*app, error) {
	db, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: c, log: log, db: db, metrics: metrics.New()}
	a.closers = append(a.closers, db.Close)

	store, closeStore, err := openKBStore(ctx, c, db)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.kbStore = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	return a, nil
}

// openKBStore selects the knowledge base backend. The sqlite backend shares
// the service database.
func openKBStore(ctx context.Context, c *config.Config, db storage.Storage) (kb.Store, func() error, error) {
	switch c.KB.Backend {
	case config.KBBackendPostgres:
		pcfg := postgres.DefaultConfig()
		pcfg.DSN = c.KB.PostgresDSN
		s, err := postgres.New(ctx, pcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres knowledge base: %w", err)
		}
		return s, s.Close, nil
	case config.KBBackendFile:
		s, err := kb.NewFileStore(c.KB.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return db, nil, nil
	}
}

// writableKB returns the knowledge base store if it accepts writes
func (a *app) writableKB() (documentStore, error) {
	s, ok := a.kbStore.(documentStore)
	if !ok {
		return nil, fmt.Errorf("the %s knowledge base backend is read-only; edit the files in %s instead", a.cfg.KB.Backend, a.cfg.KB.Dir)
	}
	return s, nil
}

func (a *app) accessor() (*kb.Accessor, error) {
	return kb.New(kb.Config{
		Store:     a.kbStore,
		TeamsKey:  a.cfg.KB.TeamsKey,
		LabelsKey: a.cfg.KB.LabelsKey,
		CacheTTL:  a.cfg.KB.CacheTTL,
		Logger:    a.log,
	})
}

func newModel(ctx context.Context, c config.ModelConfig) (ai.Model, error) {
	switch c.Provider {
	case config.ProviderGemini:
		return ai.NewGeminiModel(ctx, c.APIKey, c.Name)
	default:
		return ai.NewAnthropicModel(c.APIKey, c.Name, c.MaxTokens)
	}
}

// orchestrator wires the planner, tracker and dispatcher into a triage
// orchestrator. notifier may be nil.
func (a *app) orchestrator(ctx context.Context, notifier triage.Notifier) (*triage.Orchestrator, error) {
	c := a.cfg

	knowledge, err := a.accessor()
	if err != nil {
		return nil, err
	}
	a.knowledge = knowledge

	model, err := newModel(ctx, c.Model)
	if err != nil {
		return nil, err
	}
	var backoff ai.BackoffFunc = ai.NoBackoff
	if c.Model.BackoffBase > 0 {
		backoff = ai.LinearBackoff(c.Model.BackoffBase)
	}
	planner, err := ai.NewPlanner(&ai.Config{
		Model: model,
		Retry: ai.RetryPolicy{
			MaxAttempts: c.Model.MaxAttempts,
			Backoff:     backoff,
			Timeout:     c.Model.AttemptTimeout,
		},
		MaxConcurrentCalls: c.Model.MaxConcurrentCalls,
		Observer:           a.metrics,
		Logger:             a.log,
	})
	if err != nil {
		return nil, err
	}

	linear, err := tracker.NewLinearClient(tracker.Config{
		APIKey:            c.Tracker.APIKey,
		Endpoint:          c.Tracker.Endpoint,
		RequestsPerSecond: c.Tracker.RequestsPerSecond,
		Burst:             c.Tracker.Burst,
		Timeout:           c.Tracker.Timeout,
		Logger:            a.log,
	})
	if err != nil {
		return nil, err
	}

	promptTemplate, err := c.SystemPromptTemplate()
	if err != nil {
		return nil, err
	}

	return triage.New(triage.Config{
		KB:      knowledge,
		Planner: planner,
		Tracker: linear,
		Dispatcher: dispatch.New(linear, dispatch.Config{
			SubtaskConcurrency: c.Triage.SubtaskConcurrency,
			Failures:           a.metrics,
			Logger:             a.log,
		}),
		SystemPrompt:      ai.RenderSystemPrompt(promptTemplate, c.Triage.BotMarker),
		AwaitingInfoLabel: c.Triage.AwaitingInfoLabel,
		BotMarker:         c.Triage.BotMarker,
		CompletionEmoji:   c.Triage.CompletionEmoji,
		Recorder:          a.db,
		Observer:          a.metrics,
		Notifier:          notifier,
		Logger:            a.log,
	})
}

// Close releases everything in reverse order of acquisition
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
