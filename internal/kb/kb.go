// Package kb loads the team-routing rules and the authoritative label set
// that model output is checked against.
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/steveyegge/triage/internal/types"
)

// Default document keys
const (
	DefaultTeamsKey  = "teams"
	DefaultLabelsKey = "labels"
)

var (
	// ErrNotFound is returned by a Store when a key has no document
	ErrNotFound = errors.New("document not found")

	// ErrConfigurationMissing means a required knowledge base document is absent.
	// It is an operator error and is never retried.
	ErrConfigurationMissing = errors.New("knowledge base configuration missing")
)

// Store is a read-only key-value source of JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config holds accessor configuration
type Config struct {
	Store     Store
	TeamsKey  string        // Document key for team routing rules (default: "teams")
	LabelsKey string        // Document key for the label set (default: "labels")
	CacheTTL  time.Duration // How long documents stay cached (default: 5m, negative disables caching)
	CacheSize int           // Maximum cached documents (default: 16)
	Logger    *slog.Logger
}

// Accessor reads knowledge base documents through a process-wide cache.
// It is safe for concurrent use.
type Accessor struct {
	store     Store
	teamsKey  string
	labelsKey string
	cache     *expirable.LRU[string, []byte]
	log       *slog.Logger
}

// New creates a knowledge base accessor
func New(cfg Config) (*Accessor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("knowledge base store is required")
	}
	if cfg.TeamsKey == "" {
		cfg.TeamsKey = DefaultTeamsKey
	}
	if cfg.LabelsKey == "" {
		cfg.LabelsKey = DefaultLabelsKey
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Accessor{
		store:     cfg.Store,
		teamsKey:  cfg.TeamsKey,
		labelsKey: cfg.LabelsKey,
		log:       cfg.Logger,
	}
	if cfg.CacheTTL > 0 {
		a.cache = expirable.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return a, nil
}

// document returns the raw document for key, consulting the cache first.
func (a *Accessor) document(ctx context.Context, key string) ([]byte, error) {
	if a.cache != nil {
		if doc, ok := a.cache.Get(key); ok {
			return doc, nil
		}
	}

	doc, err := a.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no document for key %q", ErrConfigurationMissing, key)
		}
		return nil, fmt.Errorf("failed to read knowledge base key %q: %w", key, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty document for key %q", ErrConfigurationMissing, key)
	}

	if a.cache != nil {
		a.cache.Add(key, doc)
	}
	return doc, nil
}

// LoadTeams returns the team routing rules.
func (a *Accessor) LoadTeams(ctx context.Context) (types.TeamKnowledgeBase, error) {
	doc, err := a.document(ctx, a.teamsKey)
	if err != nil {
		return nil, err
	}
	var teams types.TeamKnowledgeBase
	if err := json.Unmarshal(doc, &teams); err != nil {
		return nil, fmt.Errorf("malformed team knowledge base %q: %w", a.teamsKey, err)
	}
	if teams == nil {
		teams = types.TeamKnowledgeBase{}
	}
	return teams, nil
}

// LoadLabels returns the authoritative label set.
// A document that is present but malformed yields an empty label set, so
// every candidate label is dropped rather than failing the event.
func (a *Accessor) LoadLabels(ctx context.Context) (*types.LabelKnowledgeBase, error) {
	doc, err := a.document(ctx, a.labelsKey)
	if err != nil {
		return nil, err
	}
	var labels types.LabelKnowledgeBase
	if err := json.Unmarshal(doc, &labels); err != nil {
		a.log.Warn("malformed label knowledge base, treating as empty",
			"key", a.labelsKey, "error", err)
		return &types.LabelKnowledgeBase{}, nil
	}
	return &labels, nil
}

// Load returns both documents.
func (a *Accessor) Load(ctx context.Context) (*types.KnowledgeBase, error) {
	teams, err := a.LoadTeams(ctx)
	if err != nil {
		return nil, err
	}
	labels, err := a.LoadLabels(ctx)
	if err != nil {
		return nil, err
	}
	return &types.KnowledgeBase{Teams: teams, Labels: labels}, nil
}

// ValidateLabelIDs filters candidates against the stored label set.
func (a *Accessor) ValidateLabelIDs(ctx context.Context, candidates []string) ([]string, error) {
	labels, err := a.LoadLabels(ctx)
	if err != nil {
		return nil, err
	}
	return ValidateLabelIDs(labels, candidates), nil
}

// Invalidate drops every cached document.
func (a *Accessor) Invalidate() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

// InvalidateOn drops the cache each time a signal arrives on reload, so
// edited documents are picked up without waiting for the TTL. It returns
// when ctx is done.
func (a *Accessor) InvalidateOn(ctx context.Context, reload <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-reload:
			a.Invalidate()
			a.log.Info("knowledge base cache cleared", "signal", sig)
		}
	}
}

// ValidateLabelIDs returns the candidates present in the label knowledge base,
// in their original order. Unknown IDs are dropped silently; a nil or empty
// knowledge base drops everything. The result is never nil.
func ValidateLabelIDs(labels *types.LabelKnowledgeBase, candidates []string) []string {
	valid := make([]string, 0, len(candidates))
	known := labels.IDs()
	if len(known) == 0 {
		return valid
	}
	for _, id := range candidates {
		if _, ok := known[id]; ok {
			valid = append(valid, id)
		}
	}
	return valid
}
