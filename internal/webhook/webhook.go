// Package webhook receives tracker webhook deliveries. Deliveries are
// verified, acknowledged immediately and handed to a background submitter;
// processing outcomes never reach the HTTP response.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/steveyegge/triage/internal/events"
)

// Path is where the tracker delivers events
const Path = "/webhooks/linear"

// SignatureHeader carries the hex HMAC-SHA256 of the raw body
const SignatureHeader = "Linear-Signature"

// DefaultMaxBodyBytes caps a delivery body
const DefaultMaxBodyBytes = 1 << 20

// Submitter queues an event for background processing
type Submitter interface {
	Submit(ev *events.Event) error
}

// Recorder counts deliveries by response status
type Recorder interface {
	WebhookReceived(status int)
}

// Config holds webhook handler configuration
type Config struct {
	Secret             string        // Empty disables signature verification
	MaxBodyBytes       int64         // Default: DefaultMaxBodyBytes
	TimestampTolerance time.Duration // 0 disables the replay window
	Metrics            Recorder      // Optional
	MetricsHandler     http.Handler  // Served on /metrics when set
	Logger             *slog.Logger
	Now                func() time.Time // For tests
}

// Handler serves the webhook endpoint plus health and metrics
type Handler struct {
	submitter Submitter
	cfg       Config
	log       *slog.Logger
}

// New creates a webhook handler
func New(s Submitter, cfg Config) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{submitter: s, cfg: cfg, log: log}
}

// Routes returns the service mux
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+Path, h.ServeWebhook)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	if h.cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", h.cfg.MetricsHandler)
	}
	return mux
}

// ServeWebhook verifies and acknowledges one delivery
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respond(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		h.respond(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if h.cfg.Secret != "" && !VerifySignature(h.cfg.Secret, body, r.Header.Get(SignatureHeader)) {
		h.log.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		h.respond(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := events.Decode(body)
	if err != nil {
		h.log.Warn("undecodable webhook", "error", err)
		h.respond(w, http.StatusBadRequest, "invalid event")
		return
	}

	if !h.fresh(ev) {
		h.log.Warn("stale webhook rejected", "event", ev.Kind(), "webhook_timestamp", ev.WebhookTimestamp)
		h.respond(w, http.StatusUnauthorized, "stale delivery")
		return
	}

	if !ev.IsTriageTrigger() {
		h.log.Debug("webhook ignored", "event", ev.Kind())
		h.respond(w, http.StatusOK, "ignored")
		return
	}

	if err := h.submitter.Submit(ev); err != nil {
		h.log.Error("failed to queue event", "event", ev.Kind(), "error", err)
		h.respond(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	h.log.Debug("webhook accepted", "event", ev.Kind())
	h.respond(w, http.StatusOK, "accepted")
}

// fresh applies the replay window to the sender's timestamp
func (h *Handler) fresh(ev *events.Event) bool {
	if h.cfg.TimestampTolerance <= 0 || ev.WebhookTimestamp == 0 {
		return true
	}
	sent := time.UnixMilli(ev.WebhookTimestamp)
	skew := h.cfg.Now().Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	return skew <= h.cfg.TimestampTolerance
}

func (h *Handler) respond(w http.ResponseWriter, status int, msg string) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.WebhookReceived(status)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg+"\n")
}

// VerifySignature checks a hex HMAC-SHA256 signature of body
func VerifySignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, Sign(secret, body))
}

// Sign returns the raw HMAC-SHA256 of body
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
