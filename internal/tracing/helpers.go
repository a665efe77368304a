package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "cloudlog"

// StartSinkSpan creates a client span for publishing to an external sink,
// for example StartSinkSpan(ctx, "redis", "xadd"). The returned function
// records err (if any) and ends the span.
func StartSinkSpan(ctx context.Context, system, operation string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName+"/sink").Start(ctx, system+" "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("sink.system", system),
			attribute.String("sink.operation", operation),
		),
	)
	return ctx, endFunc(span)
}

// StartSpan creates a new internal span named name.
//
//	ctx, endSpan := tracing.StartSpan(ctx, "scratch.connect")
//	defer func() { endSpan(err) }()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
