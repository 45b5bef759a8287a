package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filegate/internal/ingest"
	"filegate/pkg/fault"
)

// secretHeader carries the shared secret on every push delivery.
const secretHeader = "X-Webhook-Secret"

// EventSink accepts normalized inbound events.
type EventSink interface {
	Submit(ev ingest.Event)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler terminates the push transport: it authenticates deliveries with a
// shared-secret header and forwards decoded events to the funnel.
type Handler struct {
	secret string
	sink   EventSink
	logger *slog.Logger
	checks map[string]HealthCheck
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithHealthCheck registers a named dependency probe on /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// New constructs a Handler.
func New(secret string, sink EventSink, opts ...Option) *Handler {
	h := &Handler{
		secret: secret,
		sink:   sink,
		logger: slog.New(slog.DiscardHandler),
		checks: make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router assembles the HTTP surface: event intake, health, metrics.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/events", h.handleEvent)
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// handleEvent accepts one wire event per request. Bad secret is 401, an
// undecodable body is 400; an event that decodes but classifies to nothing
// is still accepted, the funnel drops it with a diagnostic. With no secret
// configured the push transport is disabled and every delivery is rejected,
// never treated as pre-authenticated.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		h.logger.Warn("push delivery while webhook transport is disabled", "remote", r.RemoteAddr)
		writeError(w, fault.New(fault.CodeUnauthorized, "webhook transport disabled"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.secret)) != 1 {
		h.logger.Warn("webhook delivery with bad secret", "remote", r.RemoteAddr)
		writeError(w, fault.New(fault.CodeUnauthorized, "bad webhook secret"))
		return
	}

	var ev ingest.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.logger.Warn("undecodable webhook body", "remote", r.RemoteAddr, "error", err)
		writeError(w, fault.Wrap(fault.CodeMalformedPayload, "decode event", err))
		return
	}

	h.sink.Submit(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fault.ToHTTPStatus(fault.CodeOf(err)))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
