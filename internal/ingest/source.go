// Package ingest turns cloud variable notifications into log entries.
// It owns the reconnect loop against a Source and the rules used to
// normalize each notification into a cloudlog.Entry.
package ingest

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Source opens connections to a remote cloud variable store.
type Source interface {
	// Connect logs in and subscribes to change notifications.
	Connect(ctx context.Context) (Stream, error)
}

// Stream delivers notifications from one connection.
// Next returns io.EOF when the remote side closed the connection cleanly.
type Stream interface {
	Next(ctx context.Context) (Notification, error)
	Close() error
}

// Notification is one inbound change event.
//
// Method, Name and Value mirror the protocol frame. Timestamp is nil when the
// provider did not send one. Fields holds every decoded key of the frame and
// is what user resolution reads from.
type Notification struct {
	Method    string
	Name      string
	Value     any
	Timestamp any
	Fields    map[string]any
}

// Field returns the named field rendered as a string.
// Missing, null, empty and non-scalar values all return "".
func (n Notification) Field(name string) string {
	v, ok := n.Fields[name]
	if !ok {
		return ""
	}
	return scalarString(v)
}

// Shape returns the sorted field names of the notification, joined by commas.
func (n Notification) Shape() string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
