// Package api serves the cloud variable log over HTTP: the polling HTML
// page, the JSON/CBOR log endpoints, health probes and metrics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/cloudlog/internal/middleware"
)

// Error codes returned in the JSON error body.
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeMethodNotAllowed indicates the route exists but only serves GET and HEAD.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeForbidden indicates a missing or wrong metrics token.
	ErrCodeForbidden = "forbidden"

	// ErrCodeUnavailable indicates a dependency is not ready.
	ErrCodeUnavailable = "unavailable"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Set the code on the context first so the request log reports it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeCodedError sets the code on the request context and writes the body
// with the status StatusCodeMapping assigns to it.
func writeCodedError(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// allowedReadMethods is the Allow header sent with a 405.
const allowedReadMethods = http.MethodGet + ", " + http.MethodHead

// requireRead rejects every method except GET and HEAD with a 405 JSON
// error. The server drops the body of HEAD responses.
func requireRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", allowedReadMethods)
	writeCodedError(w, r, ErrCodeMethodNotAllowed, "Method not allowed")
	return false
}
