package api

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"math/big"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/onnwee/cloudlog/internal/cloudlog"
)

// ContentTypeCBOR is negotiated through the Accept header on the log routes.
const ContentTypeCBOR = "application/cbor"

//go:embed static/index.html
var indexHTML []byte

// LogReader is the read side of the log buffer.
type LogReader interface {
	Snapshot() []cloudlog.Entry
}

// LogHandlers serves the log page and the log list.
type LogHandlers struct {
	logs   LogReader
	logger *slog.Logger
}

// NewLogHandlers creates handlers reading from logs.
func NewLogHandlers(logs LogReader, logger *slog.Logger) *LogHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandlers{logs: logs, logger: logger}
}

// Index handles GET /. The page fetches /logs every five seconds and shows
// the entries newest first.
func (h *LogHandlers) Index(w http.ResponseWriter, r *http.Request) {
	if !requireRead(w, r) {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(indexHTML); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write index page", "error", err)
	}
}

// Logs handles GET /logs and GET /cloud_log.json. It returns every buffered
// entry oldest first as a JSON array, or as a CBOR array when the client
// asks for application/cbor.
func (h *LogHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	if !requireRead(w, r) {
		return
	}

	entries := h.logs.Snapshot()
	if entries == nil {
		entries = []cloudlog.Entry{}
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Add("Vary", "Accept")

	if acceptsCBOR(r.Header.Get("Accept")) {
		data, err := cbor.Marshal(cborEntries(entries))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to encode logs as cbor", "error", err)
			writeCodedError(w, r, ErrCodeInternal, "Failed to encode logs")
			return
		}
		w.Header().Set("Content-Type", ContentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to write logs", "error", err)
		}
		return
	}

	data, err := json.Marshal(entries)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode logs as json", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to encode logs")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write logs", "error", err)
	}
}

// acceptsCBOR reports whether the Accept header lists application/cbor with
// a non-zero quality. Wildcards keep the JSON default.
func acceptsCBOR(accept string) bool {
	if accept == "" {
		return false
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mediaType != ContentTypeCBOR {
			continue
		}
		if q, ok := params["q"]; ok {
			weight, err := strconv.ParseFloat(q, 64)
			return err == nil && weight > 0
		}
		return true
	}
	return false
}

// cborEntries converts json.Number values so they encode as CBOR numbers.
// Integers beyond int64 become bignums.
func cborEntries(entries []cloudlog.Entry) []cloudlog.Entry {
	out := make([]cloudlog.Entry, len(entries))
	for i, e := range entries {
		if n, ok := e.Value.(json.Number); ok {
			e.Value = cborNumber(n)
		}
		out[i] = e
	}
	return out
}

func cborNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if b, ok := new(big.Int).SetString(n.String(), 10); ok {
		return b
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
