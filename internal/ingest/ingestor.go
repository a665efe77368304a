package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/cloudlog/internal/cloudlog"
	"github.com/onnwee/cloudlog/internal/tracing"
)

// Sink receives every entry after it has been appended to the buffer.
// Publish runs on a per-sink goroutine and must return once ctx is done.
type Sink interface {
	Name() string
	Publish(ctx context.Context, entry cloudlog.Entry) error
}

// Options carries the optional collaborators of an Ingestor.
type Options struct {
	Normalizer *Normalizer
	Sinks      []Sink
	Metrics    *Metrics
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Ingestor keeps a connection to a Source open for the life of the process
// and appends every recorded change to a cloudlog.Buffer.
type Ingestor struct {
	config     Config
	source     Source
	buffer     *cloudlog.Buffer
	normalizer *Normalizer
	sinks      []Sink
	metrics    *Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	workers []*sinkWorker // owned by the Run goroutine

	mu        sync.Mutex
	state     State
	listened  bool
	attempts  int64
	variables map[string]string   // protected by mu
	shapes    map[string]struct{} // protected by mu
}

// NewIngestor creates an Ingestor reading from source into buffer.
func NewIngestor(config Config, source Source, buffer *cloudlog.Buffer, opts Options) (*Ingestor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrNilSource
	}
	if buffer == nil {
		return nil, ErrNilBuffer
	}
	if config.SinkTimeout == 0 {
		config.SinkTimeout = DefaultSinkTimeout
	}
	if config.SinkQueueSize == 0 {
		config.SinkQueueSize = DefaultSinkQueueSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer(DefaultUserResolution(), nil, logger)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("cloudlog/ingest")
	}

	return &Ingestor{
		config:     config,
		source:     source,
		buffer:     buffer,
		normalizer: normalizer,
		sinks:      opts.Sinks,
		metrics:    opts.Metrics,
		logger:     logger,
		tracer:     tracer,
		variables:  make(map[string]string),
		shapes:     make(map[string]struct{}),
	}, nil
}

// Run connects, listens and reconnects until ctx is cancelled.
// Connection and stream errors are logged and retried after a fixed delay;
// the only error Run returns is ctx.Err().
func (i *Ingestor) Run(ctx context.Context) error {
	stopSinks := i.startSinks(ctx)
	defer stopSinks()

	for {
		if err := ctx.Err(); err != nil {
			i.setState(StateDisconnected)
			i.logger.Info("cloud ingestor stopping due to context cancellation")
			return err
		}

		i.setState(StateConnecting)
		attempt := i.nextAttempt()
		if i.metrics != nil {
			i.metrics.IncConnectAttempts()
		}

		stream, err := i.source.Connect(ctx)
		if err != nil {
			i.setState(StateDisconnected)
			if ctx.Err() != nil {
				continue
			}
			if i.metrics != nil {
				i.metrics.IncConnectFailures()
			}
			i.logger.Warn("cloud connection failed",
				slog.String("error", err.Error()),
				slog.Int64("attempt", attempt),
				slog.Duration("retry_in", i.config.ErrorDelay))
			_ = wait(ctx, i.config.ErrorDelay)
			continue
		}

		i.markListening()
		i.logger.Info("cloud listener ready")

		err = i.listen(ctx, stream)
		_ = stream.Close()
		i.setState(StateDisconnected)
		if ctx.Err() != nil {
			continue
		}

		delay := i.config.ErrorDelay
		if errors.Is(err, io.EOF) {
			delay = i.config.RetryDelay
			i.logger.Warn("cloud stream ended, reconnecting",
				slog.Duration("retry_in", delay))
		} else {
			i.logger.Warn("cloud stream failed, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay))
		}
		_ = wait(ctx, delay)
	}
}

// State returns the current position in the reconnect cycle.
func (i *Ingestor) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// HealthCheck reports an error until the ingestor has reached the
// listening state at least once.
func (i *Ingestor) HealthCheck(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.listened {
		return fmt.Errorf("cloud ingestor has not connected yet (state %s)", i.state)
	}
	return nil
}

// Variable returns the last value seen for a cloud variable.
func (i *Ingestor) Variable(name string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.variables[name]
	return v, ok
}

func (i *Ingestor) listen(ctx context.Context, stream Stream) error {
	for {
		n, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		i.handle(ctx, n)
	}
}

// handle records one notification. Nothing in here returns an error:
// failures are logged and the notification still yields an entry.
func (i *Ingestor) handle(ctx context.Context, n Notification) {
	ctx, span := i.tracer.Start(ctx, "ingest.notification",
		trace.WithAttributes(
			attribute.String("cloud.method", n.Method),
			attribute.String("cloud.variable", n.Name),
		))
	defer span.End()

	i.observe(n)

	entry, ok := i.normalizer.Normalize(ctx, n, i.Variable)
	if !ok {
		tracing.AddEvent(ctx, "notification.ignored")
		if i.metrics != nil {
			i.metrics.IncNotificationsIgnored()
		}
		i.logger.Debug("ignoring cloud notification", slog.String("method", n.Method))
		return
	}

	tracing.SetAttributes(ctx,
		attribute.String("cloud.action", string(entry.Action)),
		attribute.String("cloud.user", entry.User))

	i.buffer.Append(entry)
	if i.metrics != nil {
		i.metrics.IncEntriesIngested(string(entry.Action))
		i.metrics.SetBufferEntries(i.buffer.Len())
	}
	i.logger.Info("cloud variable changed",
		slog.String("time", entry.Time),
		slog.String("user", entry.User),
		slog.String("action", string(entry.Action)),
		slog.String("variable", entry.VariableName()),
		slog.Any("value", entry.Value))

	for _, w := range i.workers {
		select {
		case w.queue <- queuedEntry{entry: entry, parent: span.SpanContext()}:
		default:
			tracing.AddEvent(ctx, "sink.dropped", attribute.String("sink", w.sink.Name()))
			if i.metrics != nil {
				i.metrics.IncSinkErrors(w.sink.Name())
			}
			i.logger.Warn("sink queue full, dropping entry",
				slog.String("sink", w.sink.Name()),
				slog.String("variable", entry.VariableName()))
		}
	}
}

type queuedEntry struct {
	entry  cloudlog.Entry
	parent trace.SpanContext
}

// sinkWorker feeds one sink from a bounded queue so a slow sink never
// holds up reading the stream.
type sinkWorker struct {
	sink  Sink
	queue chan queuedEntry
}

// startSinks launches one worker per sink. The returned function closes the
// queues and waits for the workers; entries still queued once ctx is done
// are discarded.
func (i *Ingestor) startSinks(ctx context.Context) func() {
	var wg sync.WaitGroup
	i.workers = make([]*sinkWorker, 0, len(i.sinks))
	for _, s := range i.sinks {
		w := &sinkWorker{sink: s, queue: make(chan queuedEntry, i.config.SinkQueueSize)}
		i.workers = append(i.workers, w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range w.queue {
				if ctx.Err() != nil {
					continue
				}
				i.publish(ctx, w.sink, q)
			}
		}()
	}

	return func() {
		for _, w := range i.workers {
			close(w.queue)
		}
		wg.Wait()
		i.workers = nil
	}
}

func (i *Ingestor) publish(ctx context.Context, s Sink, q queuedEntry) {
	ctx, span := i.tracer.Start(trace.ContextWithSpanContext(ctx, q.parent), "ingest.publish",
		trace.WithAttributes(attribute.String("sink", s.Name())))
	defer span.End()

	pubCtx, cancel := context.WithTimeout(ctx, i.config.SinkTimeout)
	defer cancel()

	err := s.Publish(pubCtx, q.entry)
	if err == nil || ctx.Err() != nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if i.metrics != nil {
		i.metrics.IncSinkErrors(s.Name())
	}
	i.logger.Warn("sink publish failed",
		slog.String("sink", s.Name()),
		slog.String("error", err.Error()))
}

// observe tracks variable values and logs each new notification shape once.
func (i *Ingestor) observe(n Notification) {
	shape := n.Shape()

	i.mu.Lock()
	_, seen := i.shapes[shape]
	if !seen {
		i.shapes[shape] = struct{}{}
	}
	switch n.Method {
	case string(cloudlog.ActionSet), string(cloudlog.ActionCreate):
		if n.Name != "" {
			i.variables[n.Name] = scalarString(n.Value)
		}
	case string(cloudlog.ActionDelete):
		delete(i.variables, n.Name)
	}
	i.mu.Unlock()

	if !seen {
		i.logger.Debug("new notification shape",
			slog.String("fields", shape),
			slog.Any("sample", n.Fields))
	}
}

func (i *Ingestor) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
	if i.metrics != nil {
		i.metrics.SetState(s)
	}
}

func (i *Ingestor) markListening() {
	i.mu.Lock()
	i.state = StateListening
	i.listened = true
	i.attempts = 0
	i.mu.Unlock()
	if i.metrics != nil {
		i.metrics.SetState(StateListening)
	}
}

func (i *Ingestor) nextAttempt() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attempts++
	return i.attempts
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
