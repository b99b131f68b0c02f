// Package metrics exposes Prometheus collectors for the triage pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/steveyegge/triage/internal/ai"
	"github.com/steveyegge/triage/internal/types"
)

const namespace = "triage"

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	webhookRequests  *prometheus.CounterVec
	events           *prometheus.CounterVec
	eventDuration    *prometheus.HistogramVec
	planAttempts     *prometheus.CounterVec
	planDuration     *prometheus.HistogramVec
	mutationFailures *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook deliveries by response status.",
		}, []string{"status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Handled events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one event.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
		planAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_attempts_total",
			Help:      "Model calls by result (ok, invalid, error).",
		}, []string{"result"}),
		planDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_generation_seconds",
			Help:      "Plan generation latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"result"}),
		mutationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_failures_total",
			Help:      "Failed tracker mutations by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookRequests,
		m.events,
		m.eventDuration,
		m.planAttempts,
		m.planDuration,
		m.mutationFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WebhookReceived counts one delivery
func (m *Metrics) WebhookReceived(status int) {
	m.webhookRequests.WithLabelValues(http.StatusText(status)).Inc()
}

// EventHandled counts one event and its duration
func (m *Metrics) EventHandled(kind string, outcome types.Outcome, duration time.Duration) {
	m.events.WithLabelValues(kind, string(outcome)).Inc()
	m.eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// PlanAttempt counts one model call
func (m *Metrics) PlanAttempt(err error) {
	m.planAttempts.WithLabelValues(attemptResult(err)).Inc()
}

// PlanGenerated records total plan generation latency
func (m *Metrics) PlanGenerated(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.planDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// MutationFailed counts one failed tracker write
func (m *Metrics) MutationFailed(op string) {
	m.mutationFailures.WithLabelValues(op).Inc()
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ai.ErrInvalidPlan):
		return "invalid"
	default:
		return "error"
	}
}
