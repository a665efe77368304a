package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/cloudlog/internal/health"
)

// HealthHandlers provides health and readiness check endpoints.
type HealthHandlers struct {
	checks *health.Registry
	logger *slog.Logger
	now    func() time.Time
}

// NewHealthHandlers creates health handlers. checks may be nil, in which
// case /ready only reports the runtime.
func NewHealthHandlers(checks *health.Registry, logger *slog.Logger) *HealthHandlers {
	if checks == nil {
		checks = health.NewRegistry(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandlers{checks: checks, logger: logger, now: time.Now}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe). It returns 200 whenever the
// process can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if !requireRead(w, r) {
		return
	}

	h.write(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). It runs every registered check
// and returns 503 if any fails, e.g. before the ingestor has connected once
// or while Redis is unreachable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if !requireRead(w, r) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := h.checks.Run(ctx)
	checks := map[string]string{"runtime": "ok"}
	for _, res := range results {
		if res.OK() {
			checks[res.Name] = "ok"
			continue
		}
		checks[res.Name] = "error"
		h.logger.WarnContext(ctx, "readiness check failed",
			slog.String("check", res.Name),
			slog.String("error", res.Error.Error()))
	}

	status, code := "healthy", http.StatusOK
	if !health.Healthy(results) {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	h.write(w, r, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandlers) write(w http.ResponseWriter, r *http.Request, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode health response", "error", err)
	}
}
