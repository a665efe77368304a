package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsTokenHeader carries the optional token protecting /metrics.
const MetricsTokenHeader = "X-Internal-Token"

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	Logs    *LogHandlers
	Health  *HealthHandlers
	Metrics http.Handler
}

// NewRouter mounts the service routes. Any path that is not a known route
// gets a 404 JSON error; known routes answer GET and HEAD and reject other
// methods with 405.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/logs", cfg.Logs.Logs)
	mux.HandleFunc("/cloud_log.json", cfg.Logs.Logs)
	if cfg.Health != nil {
		mux.HandleFunc("/health", cfg.Health.Health)
		mux.HandleFunc("/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	// "/" is the catch-all pattern, so only the exact root serves the page.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeCodedError(w, r, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		cfg.Logs.Index(w, r)
	})

	return mux
}

// MetricsHandler serves the registry in the Prometheus text format.
// When token is non-empty, requests must carry it in X-Internal-Token.
func MetricsHandler(reg *prometheus.Registry, token string) http.Handler {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireRead(w, r) {
			return
		}
		if token != "" &&
			subtle.ConstantTimeCompare([]byte(r.Header.Get(MetricsTokenHeader)), []byte(token)) != 1 {
			writeCodedError(w, r, ErrCodeForbidden, "Forbidden")
			return
		}
		h.ServeHTTP(w, r)
	})
}
