// Package sink forwards log entries out of the process: a Redis stream for
// live consumers and a JSON snapshot file for static hosting.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/cloudlog/internal/cloudlog"
	"github.com/onnwee/cloudlog/internal/tracing"
)

// DefaultStream is the Redis stream key entries are appended to.
const DefaultStream = "cloudlog:entries"

// RedisStream appends every entry to a capped Redis stream.
// It implements ingest.Sink.
type RedisStream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStream creates a RedisStream writing to stream, trimmed to roughly
// maxLen entries. An empty stream uses DefaultStream; maxLen <= 0 disables
// trimming.
func NewRedisStream(client redis.UniversalClient, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

// Name identifies the sink in logs and metrics.
func (r *RedisStream) Name() string {
	return "redis"
}

// Publish adds entry to the stream.
func (r *RedisStream) Publish(ctx context.Context, entry cloudlog.Entry) (err error) {
	ctx, endSpan := tracing.StartSinkSpan(ctx, "redis", "xadd")
	defer func() { endSpan(err) }()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"action":   string(entry.Action),
			"variable": entry.VariableName(),
			"user":     entry.User,
			"entry":    data,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add entry to stream %s: %w", r.stream, err)
	}
	return nil
}
