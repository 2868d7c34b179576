package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/oteladapters"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/promadapters"
	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	"github.com/AntonStoeckl/occ-balance-simulator-go/balancecache"
	"github.com/AntonStoeckl/occ-balance-simulator-go/config"
	"github.com/AntonStoeckl/occ-balance-simulator-go/mutation"
)

const (
	serviceName     = "balance-simulator"
	metricNamespace = "balance_simulator"
	shutdownTimeout = 5 * time.Second
)

// telemetry bundles the observability dependencies handed to the store, the cache and the mutator.
type telemetry struct {
	logger           *slog.Logger
	contextualLogger accountstore.ContextualLogger
	metrics          accountstore.MetricsCollector
	tracing          accountstore.TracingCollector
	shutdowns        []func(ctx context.Context) error
}

func setupTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	t := &telemetry{logger: logger, contextualLogger: logger}

	if cfg.MetricsAddr != "" {
		t.metrics = t.serveMetrics(cfg.MetricsAddr)
	}

	if cfg.OTelEnabled {
		if err := t.setupTracing(ctx, cfg.OTelEndpoint); err != nil {
			t.shutdown(logger)
			return nil, err
		}
	}

	return t, nil
}

func (t *telemetry) serveMetrics(addr string) *promadapters.MetricsCollector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("metrics endpoint failed", "addr", addr, "error", err.Error())
		}
	}()

	t.logger.Info("metrics endpoint listening", "addr", addr)
	t.shutdowns = append(t.shutdowns, server.Shutdown)

	return promadapters.NewMetricsCollector(registry, promadapters.WithNamespace(metricNamespace))
}

func (t *telemetry) setupTracing(ctx context.Context, endpoint string) error {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return fmt.Errorf("create otlp trace exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tracerProvider)

	t.tracing = oteladapters.NewTracingCollector(tracerProvider.Tracer(serviceName))
	t.contextualLogger = oteladapters.NewSlogBridgeLogger(serviceName)
	t.shutdowns = append(t.shutdowns, tracerProvider.Shutdown)

	t.logger.Info("tracing enabled", "endpoint", endpoint)

	return nil
}

func (t *telemetry) shutdown(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err.Error())
		}
	}
}

func (t *telemetry) storeOptions(cfg config.Config) []sqlengine.Option {
	options := []sqlengine.Option{
		sqlengine.WithTableName(cfg.AccountsTable),
		sqlengine.WithLogger(t.logger),
		sqlengine.WithContextualLogger(t.contextualLogger),
	}

	if t.metrics != nil {
		options = append(options, sqlengine.WithMetrics(t.metrics))
	}

	if t.tracing != nil {
		options = append(options, sqlengine.WithTracing(t.tracing))
	}

	return options
}

func (t *telemetry) mutatorOptions(
	cfg config.Config,
	cache mutation.Cache,
	backoff mutation.BackoffPolicy,
) []mutation.Option {

	options := []mutation.Option{
		mutation.WithCache(cache),
		mutation.WithBackoff(backoff),
		mutation.WithLogger(t.logger),
		mutation.WithContextualLogger(t.contextualLogger),
	}

	if readsFromReplica(cfg) {
		options = append(options, mutation.WithReplicaReads())
	}

	if t.metrics != nil {
		options = append(options, mutation.WithMetrics(t.metrics))
	}

	if t.tracing != nil {
		options = append(options, mutation.WithTracing(t.tracing))
	}

	return options
}

// readsFromReplica reports whether the store is opened with a read replica.
func readsFromReplica(cfg config.Config) bool {
	return cfg.DBAdapter == config.AdapterPGX && cfg.DatabaseReplicaDSN != ""
}

// openStore connects the configured adapter and returns the store with a function that closes the connection.
func openStore(ctx context.Context, cfg config.Config, t *telemetry) (*sqlengine.Store, func(), error) {
	options := t.storeOptions(cfg)

	switch cfg.DBAdapter {
	case config.AdapterPGX:
		return openPGXStore(ctx, cfg, options)

	case config.AdapterSQL:
		db, err := config.OpenSQLDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}

		store, err := sqlengine.NewStoreFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create store: %w", err)
		}

		return store, func() { _ = db.Close() }, nil

	case config.AdapterSQLX:
		db, err := config.OpenSQLX(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}

		store, err := sqlengine.NewStoreFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create store: %w", err)
		}

		return store, func() { _ = db.Close() }, nil

	default:
		db, err := config.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		store, err := sqlengine.NewStoreFromSQLDB(db, append(options, sqlengine.WithDialect(sqlengine.DialectSQLite))...)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create store: %w", err)
		}

		return store, func() { _ = db.Close() }, nil
	}
}

func openPGXStore(ctx context.Context, cfg config.Config, options []sqlengine.Option) (*sqlengine.Store, func(), error) {
	primary, err := config.OpenPGXPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	if !readsFromReplica(cfg) {
		store, storeErr := sqlengine.NewStoreFromPGXPool(primary, options...)
		if storeErr != nil {
			primary.Close()
			return nil, nil, fmt.Errorf("create store: %w", storeErr)
		}

		return store, primary.Close, nil
	}

	replica, err := config.OpenPGXPool(ctx, cfg.DatabaseReplicaDSN)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	closeBoth := func() {
		replica.Close()
		primary.Close()
	}

	store, err := sqlengine.NewStoreFromPGXPoolWithReplica(primary, replica, options...)
	if err != nil {
		closeBoth()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, closeBoth, nil
}

func newCache(cfg config.Config, t *telemetry) (mutation.Cache, error) {
	if !cfg.CacheEnabled {
		return balancecache.Disabled{}, nil
	}

	options := []balancecache.Option{
		balancecache.WithKeyPrefix(cfg.CacheKeyPrefix),
		balancecache.WithLogger(t.logger),
	}

	if t.metrics != nil {
		options = append(options, balancecache.WithMetrics(t.metrics))
	}

	cache, err := balancecache.NewCache(balancecache.NewMemoryBackend(cfg.CacheTTL), options...)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return cache, nil
}

func newBackoff(cfg config.Config) (mutation.BackoffPolicy, error) {
	switch cfg.BackoffStrategy {
	case config.BackoffNone:
		return mutation.NoBackoff{}, nil

	case config.BackoffExponential:
		backoff, err := mutation.NewExponentialBackoff(cfg.ConflictBackoff, cfg.BackoffMax, cfg.BackoffJitter)
		if err != nil {
			return nil, fmt.Errorf("create backoff: %w", err)
		}

		return backoff, nil

	default:
		backoff, err := mutation.NewFixedBackoff(cfg.ConflictBackoff)
		if err != nil {
			return nil, fmt.Errorf("create backoff: %w", err)
		}

		return backoff, nil
	}
}
