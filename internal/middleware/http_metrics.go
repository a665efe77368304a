package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// knownRoutes are recorded under their own path label. Everything else is
// folded into "other" so scanners probing random URLs cannot blow up the
// label cardinality.
var knownRoutes = map[string]bool{
	"/":               true,
	"/logs":           true,
	"/cloud_log.json": true,
	"/metrics":        true,
}

// normalizePath maps a request path to its metrics label.
func normalizePath(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap returns the underlying writer.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// Health check endpoints (/health, /ready) are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				mrw.size,
			)
		})
	}
}
