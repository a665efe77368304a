package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/onnwee/cloudlog/internal/cloudlog"
)

// TimeLayout formats locally generated entry timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// CloudPrefix is the marker the cloud service puts in front of variable names.
const CloudPrefix = "☁ "

// UserResolution declares where a username is taken from, in order:
// the first non-empty field in Fields, then the first id in IDFields passed
// through a UserResolver, then the current value of HelperVariable.
// If all of these come up empty the user is cloudlog.UnknownUser.
type UserResolution struct {
	Fields         []string
	IDFields       []string
	HelperVariable string
}

// DefaultUserResolution returns the candidate lists seen across providers.
func DefaultUserResolution() UserResolution {
	return UserResolution{
		Fields:         []string{"user", "username", "author", "player", "owner"},
		IDFields:       []string{"user_id", "uid", "id"},
		HelperVariable: "last_user",
	}
}

// UserResolver maps a numeric user id to a username.
type UserResolver interface {
	ResolveUser(ctx context.Context, id string) (string, error)
}

// VariableLookup returns the current value of a cloud variable.
type VariableLookup func(name string) (string, bool)

// Normalizer converts notifications into log entries.
type Normalizer struct {
	resolution UserResolution
	resolver   UserResolver
	logger     *slog.Logger
	now        func() time.Time
}

// NewNormalizer creates a Normalizer. resolver may be nil, in which case
// IDFields are skipped.
func NewNormalizer(resolution UserResolution, resolver UserResolver, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		resolution: resolution,
		resolver:   resolver,
		logger:     logger,
		now:        time.Now,
	}
}

// Normalize builds an entry from n. The second return value is false when
// the notification's method is not one that gets recorded.
// It never fails: anything missing is replaced with a sentinel.
func (z *Normalizer) Normalize(ctx context.Context, n Notification, vars VariableLookup) (cloudlog.Entry, bool) {
	action, ok := cloudlog.ParseAction(n.Method)
	if !ok {
		return cloudlog.Entry{}, false
	}

	entry := cloudlog.Entry{
		Time:     z.timestamp(n.Timestamp),
		Variable: cloudlog.StringPtr(variableName(n)),
		User:     z.user(ctx, n, vars),
		Action:   action,
	}
	if action == cloudlog.ActionSet {
		entry.Value = n.Value
	}
	return entry, true
}

func variableName(n Notification) string {
	if v := n.Field("var"); v != "" {
		return v
	}
	return n.Name
}

func (z *Normalizer) timestamp(ts any) string {
	switch t := ts.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC().Format(TimeLayout)
	case int64:
		return time.UnixMilli(t).UTC().Format(TimeLayout)
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return time.UnixMilli(ms).UTC().Format(TimeLayout)
		}
		if f, err := t.Float64(); err == nil {
			return time.UnixMilli(int64(f)).UTC().Format(TimeLayout)
		}
	default:
		if s := scalarString(ts); s != "" {
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC().Format(TimeLayout)
			}
			return s
		}
	}
	return z.now().UTC().Format(TimeLayout)
}

func (z *Normalizer) user(ctx context.Context, n Notification, vars VariableLookup) string {
	for _, field := range z.resolution.Fields {
		if u := n.Field(field); u != "" {
			return u
		}
	}

	if z.resolver != nil {
		for _, field := range z.resolution.IDFields {
			id := n.Field(field)
			if id == "" {
				continue
			}
			name, err := z.resolver.ResolveUser(ctx, id)
			if err != nil {
				z.logger.Debug("user lookup failed",
					slog.String("id", id),
					slog.String("error", err.Error()))
				break
			}
			if name != "" {
				return name
			}
			break
		}
	}

	if helper := z.resolution.HelperVariable; helper != "" && vars != nil {
		if u, ok := vars(helper); ok && u != "" {
			return u
		}
		if u, ok := vars(CloudPrefix + helper); ok && u != "" {
			return u
		}
	}

	return cloudlog.UnknownUser
}
