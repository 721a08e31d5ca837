package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessProbe reports whether a downstream dependency can serve traffic.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	clock       func() time.Time
	startedAt   time.Time
	environment string
	probes      map[string]ReadinessProbe
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		probes: map[string]ReadinessProbe{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock().UTC()
	}
	return h
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthEnvironment records the deployment environment in health payloads.
func WithHealthEnvironment(env string) HealthOption {
	return func(h *HealthHandlers) {
		h.environment = env
	}
}

// WithReadinessProbe registers a named dependency probe evaluated by Readyz.
func WithReadinessProbe(name string, probe ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && probe != nil {
			h.probes[name] = probe
		}
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"environment": h.environment,
		"uptime":      now.Sub(h.startedAt).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

// Readyz evaluates every registered dependency probe and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	ready := true
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	payload := map[string]any{
		"status":    "ready",
		"checks":    checks,
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if !ready {
		status = http.StatusServiceUnavailable
		payload["status"] = "unavailable"
	}
	writeJSONResponse(w, status, payload)
}
