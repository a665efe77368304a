// Package tracing provides OpenTelemetry distributed tracing setup and
// span helpers for the cloud log service.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporter types accepted by Config.ExporterType.
const (
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// DefaultServiceName is used when Config.ServiceName is empty.
const DefaultServiceName = "cloudlog"

const exporterSetupTimeout = 10 * time.Second

// Configuration errors.
var (
	ErrInvalidSamplingRate = errors.New("sampling rate must be between 0 and 1")
	ErrUnsupportedExporter = errors.New("unsupported exporter type")
)

// Config mirrors the tracing_* settings of the service configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	Environment    string

	// ExporterType is otlp-grpc or otlp-http; empty means otlp-http.
	ExporterType string
	// OTLPEndpoint is the collector host:port. Empty uses the exporter's
	// own default and OTEL_EXPORTER_OTLP_* variables.
	OTLPEndpoint string
	SamplingRate float64
	InsecureMode bool
}

// Provider owns the SDK tracer provider. A disabled Provider hands out
// tracers from the global provider, which is a no-op unless something else
// installed one.
type Provider struct {
	tp          *sdktrace.TracerProvider
	serviceName string
	logger      *slog.Logger
}

// NewProvider builds the tracer provider described by cfg and installs it,
// together with the W3C trace context and baggage propagators, as the
// global default.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return &Provider{serviceName: cfg.ServiceName, logger: logger}, nil
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidSamplingRate, cfg.SamplingRate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), exporterSetupTimeout)
	defer cancel()

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRate)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("exporter", cfg.ExporterType),
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.Float64("sampling_rate", cfg.SamplingRate))

	return &Provider{tp: tp, serviceName: cfg.ServiceName, logger: logger}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.ExporterType {
	case ExporterOTLPGRPC:
		var opts []otlptracegrpc.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.InsecureMode {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case ExporterOTLPHTTP, "":
		var opts []otlptracehttp.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.InsecureMode {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExporter, cfg.ExporterType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.ExporterType, err)
	}
	return exporter, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// samplerFor honours the parent decision so a sampled inbound request keeps
// its trace even at low local rates.
func samplerFor(rate float64) sdktrace.Sampler {
	switch rate {
	case 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans. It is a no-op when tracing is disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	p.logger.Info("shutting down tracer provider")
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// Tracer returns a named tracer from the SDK provider, or from the global
// provider when tracing is disabled.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return otel.Tracer(name)
	}
	return p.tp.Tracer(name)
}
