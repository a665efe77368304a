package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/cloudlog/internal/api"
	"github.com/onnwee/cloudlog/internal/cloudlog"
	"github.com/onnwee/cloudlog/internal/config"
	"github.com/onnwee/cloudlog/internal/health"
	"github.com/onnwee/cloudlog/internal/ingest"
	"github.com/onnwee/cloudlog/internal/jobs"
	"github.com/onnwee/cloudlog/internal/middleware"
	"github.com/onnwee/cloudlog/internal/scratch"
	"github.com/onnwee/cloudlog/internal/sink"
	"github.com/onnwee/cloudlog/internal/tracing"
)

const (
	serviceName     = "cloudlog"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

// app owns every long-lived component of the server.
type app struct {
	logger   *slog.Logger
	buffer   *cloudlog.Buffer
	ingestor *ingest.Ingestor
	snapshot *sink.FileSnapshot
	server   *http.Server
	redis    redis.UniversalClient
	tracer   *tracing.Provider

	closeOnce sync.Once
}

func newApp(cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tracer, err = tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ingestMetrics := ingest.NewMetrics()
	if err := ingestMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register ingest metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register job metrics: %w", err)
	}

	checks := health.NewRegistry(health.DefaultTimeout)
	a.buffer = cloudlog.NewBuffer(cfg.LogCapacity)
	httpClient := &http.Client{Timeout: 15 * time.Second}

	var sinks []ingest.Sink
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		sinks = append(sinks, sink.NewRedisStream(a.redis, cfg.RedisStream, cfg.RedisStreamMaxLen))
		checks.Register("redis", health.NewRedisChecker(a.redis))
	}

	if cfg.SnapshotPath != "" {
		a.snapshot, err = sink.NewFileSnapshot(cfg.SnapshotPath, cfg.SnapshotInterval, a.buffer, logger)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		a.snapshot.SetMetrics(jobMetrics)
		snapshot := a.snapshot
		checks.Register("snapshot", health.CheckerFunc(func(context.Context) error {
			return snapshot.Err()
		}))
	}

	var resolver ingest.UserResolver
	if cfg.ScratchUserLookupURL != "" {
		lookup, err := scratch.NewUserLookup(cfg.ScratchUserLookupURL, httpClient, cfg.ScratchLookupRate)
		if err != nil {
			return nil, fmt.Errorf("user lookup: %w", err)
		}
		resolver = lookup
	}

	scratchCfg := scratch.DefaultConfig()
	scratchCfg.Username = cfg.ScratchUsername
	scratchCfg.Password = cfg.ScratchPassword
	scratchCfg.ProjectID = cfg.ScratchProjectID
	scratchCfg.BaseURL = cfg.ScratchBaseURL
	scratchCfg.CloudURL = cfg.ScratchCloudURL
	source, err := scratch.NewCloudSource(scratchCfg, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("cloud source: %w", err)
	}

	normalizer := ingest.NewNormalizer(ingest.UserResolution{
		Fields:         cfg.UserFields,
		IDFields:       cfg.UserIDFields,
		HelperVariable: cfg.HelperVariable,
	}, resolver, logger)

	a.ingestor, err = ingest.NewIngestor(ingest.Config{
		RetryDelay: cfg.RetryDelay,
		ErrorDelay: cfg.ErrorDelay,
	}, source, a.buffer, ingest.Options{
		Normalizer: normalizer,
		Sinks:      sinks,
		Metrics:    ingestMetrics,
		Logger:     logger,
		Tracer:     a.tracer.Tracer("cloudlog/ingest"),
	})
	if err != nil {
		return nil, fmt.Errorf("ingestor: %w", err)
	}
	checks.Register("ingestor", a.ingestor)

	router := api.NewRouter(api.RouterConfig{
		Logs:    api.NewLogHandlers(a.buffer, logger),
		Health:  api.NewHealthHandlers(checks, logger),
		Metrics: api.MetricsHandler(reg, cfg.MetricsToken),
	})
	a.server = &http.Server{
		Handler: middleware.Chain(router,
			middleware.RequestID,
			middleware.Tracing(serviceName),
			middleware.Logging(logger),
			middleware.HTTPMetrics(httpMetrics),
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// Run serves HTTP on ln and runs the ingestor (and the snapshot writer when
// configured) until ctx is cancelled or one of them fails. A cancelled ctx
// is a clean shutdown and returns nil.
func (a *app) Run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting server", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.ingestor.Run(gctx)
	})

	if a.snapshot != nil {
		g.Go(func() error {
			return a.snapshot.Run(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases external clients and flushes pending spans.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.logger.Warn("failed to close redis client", "error", err)
			}
		}
		if a.tracer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.tracer.Shutdown(ctx); err != nil {
				a.logger.Warn("failed to shut down tracing", "error", err)
			}
		}
	})
}
