package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/triage/internal/types"
	"golang.org/x/sync/semaphore"
)

// Observer receives plan generation telemetry. Implementations must be safe
// for concurrent use.
type Observer interface {
	// PlanAttempt is called after every model call with its parse/call error (nil on success)
	PlanAttempt(err error)
	// PlanGenerated is called once per GeneratePlan with the total duration and final error
	PlanGenerated(duration time.Duration, err error)
}

// Planner turns issue content into a validated TriagePlan.
//
// The Planner's responsibilities are distributed across multiple files:
// - supervisor.go: Core struct, constructor and GeneratePlan (this file)
// - model.go: Model interface and the Anthropic/Gemini backends
// - retry.go: Bounded attempts with injected backoff
// - schema.go: Declarative TriagePlan schema and validation
// - json_parser.go: Extraction of the JSON object from raw model output
// - prompt.go: System instruction and issue content rendering
type Planner struct {
	model          Model
	retry          RetryPolicy
	concurrencySem *semaphore.Weighted // Limits concurrent model calls across events
	observer       Observer
	log            *slog.Logger
}

// Config holds planner configuration
type Config struct {
	Model              Model
	Retry              RetryPolicy // Retry configuration (uses defaults if MaxAttempts is 0)
	MaxConcurrentCalls int         // Maximum concurrent model calls (0 = unlimited)
	Observer           Observer    // Optional telemetry sink
	Logger             *slog.Logger
}

// NewPlanner creates a new plan generator
func NewPlanner(cfg *Config) (*Planner, error) {
	if cfg == nil || cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	if retry.Backoff == nil {
		retry.Backoff = LinearBackoff(DefaultBackoffBase)
	}

	var concurrencySem *semaphore.Weighted
	if cfg.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Planner{
		model:          cfg.Model,
		retry:          retry,
		concurrencySem: concurrencySem,
		observer:       cfg.Observer,
		log:            log,
	}, nil
}

// GeneratePlan asks the model for a triage plan.
//
// The system prompt is combined with the serialized knowledge base into the
// instruction; issueContent is sent as the task input. Malformed or
// schema-violating output counts as a failed attempt and is retried.
// After the last attempt the error wraps ErrPlanGenerationFailed.
func (p *Planner) GeneratePlan(ctx context.Context, systemPrompt string, kb *types.KnowledgeBase, issueContent string) (*types.TriagePlan, error) {
	startTime := time.Now()

	instruction, err := BuildInstruction(systemPrompt, kb)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanGenerationFailed, err)
	}
	req := Request{System: instruction, Content: issueContent}

	var plan *types.TriagePlan
	err = p.retryWithBackoff(ctx, "plan generation", func(attemptCtx context.Context) error {
		raw, callErr := p.model.Generate(attemptCtx, req)
		if callErr == nil {
			plan, callErr = ParsePlan(raw)
			if callErr != nil {
				p.log.Debug("model output rejected",
					"model", p.model.Name(),
					"error", callErr,
					"output", truncateString(raw, 200))
			}
		}
		if p.observer != nil {
			p.observer.PlanAttempt(callErr)
		}
		return callErr
	})

	duration := time.Since(startTime)
	if p.observer != nil {
		p.observer.PlanGenerated(duration, err)
	}
	if err != nil {
		return nil, err
	}

	p.log.Info("plan generated",
		"model", p.model.Name(),
		"needs_clarification", plan.NeedsClarification,
		"duration", duration)
	return plan, nil
}

// EncodePlan renders a plan as compact JSON for audit records
func EncodePlan(plan *types.TriagePlan) string {
	if plan == nil {
		return ""
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return ""
	}
	return string(data)
}
