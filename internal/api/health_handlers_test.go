package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/cloudlog/internal/health"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealth_Success(t *testing.T) {
	handlers := NewHealthHandlers(nil, newTestLogger())

	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	response := decodeHealth(t, w)
	if response.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", response.Status)
	}
	if response.Checks["runtime"] != "ok" {
		t.Errorf("expected runtime check to be 'ok', got %s", response.Checks["runtime"])
	}
	if _, err := time.Parse(time.RFC3339, response.Timestamp); err != nil {
		t.Errorf("timestamp is not valid RFC3339: %v", err)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandlers(nil, newTestLogger()).Health(w, httptest.NewRequest(http.MethodPost, "/health", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestReady(t *testing.T) {
	ok := health.CheckerFunc(func(ctx context.Context) error { return nil })
	failing := health.CheckerFunc(func(ctx context.Context) error { return errors.New("not listening yet") })

	tests := []struct {
		name       string
		checkers   map[string]health.Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{"runtime": "ok"},
		},
		{
			name:       "all healthy",
			checkers:   map[string]health.Checker{"ingestor": ok, "redis": ok},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{"runtime": "ok", "ingestor": "ok", "redis": "ok"},
		},
		{
			name:       "ingestor not yet listening",
			checkers:   map[string]health.Checker{"ingestor": failing, "redis": ok},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"ingestor": "error", "redis": "ok"},
		},
		{
			name:       "redis unreachable",
			checkers:   map[string]health.Checker{"ingestor": ok, "redis": failing},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"ingestor": "ok", "redis": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := health.NewRegistry(time.Second)
			for name, c := range tt.checkers {
				reg.Register(name, c)
			}

			w := httptest.NewRecorder()
			NewHealthHandlers(reg, newTestLogger()).Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			response := decodeHealth(t, w)
			if response.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, response.Status)
			}
			for name, want := range tt.wantChecks {
				if response.Checks[name] != want {
					t.Errorf("expected %s check %q, got %q", name, want, response.Checks[name])
				}
			}
		})
	}
}
