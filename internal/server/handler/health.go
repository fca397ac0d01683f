package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// checkTimeout bounds each component probe so a hung backend cannot stall
// the health endpoint.
const checkTimeout = 2 * time.Second

// HealthCheckFunc probes one backing component.
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler serves the health-check endpoint. Components register named
// probes at wiring time; the endpoint reports degraded when any probe fails.
type HealthHandler struct {
	checks map[string]HealthCheckFunc
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]HealthCheckFunc),
		logger: logger,
	}
}

// AddCheck registers a named component probe.
func (h *HealthHandler) AddCheck(name string, fn HealthCheckFunc) *HealthHandler {
	h.checks[name] = fn
	return h
}

// HealthCheck responds with the liveness of the server and each registered
// component. Returns 200 when everything passes, 503 when degraded.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(h.checks))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			status = "degraded"
			components[name] = err.Error()
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(components) > 0 {
		body["components"] = components
	}
	writeJSON(w, code, body)
}
