// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the chatgate server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatgate/config"
	"chatgate/internal/observability"
	"chatgate/internal/providers"
	"chatgate/internal/server"
	"chatgate/internal/usage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config *config.Config
	source providers.Source
	loader *providers.Loader
	usage  *usage.Result
	server *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Factory builds provider backends; it is the dispatcher's invoker.
	Factory *providers.ProviderFactory

	// Registry receives the Prometheus collectors when metrics are enabled.
	// Nil selects a fresh registry.
	Registry *prometheus.Registry
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	source, err := newSource(appCfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider source: %w", err)
	}
	app.source = source

	usageResult, err := usage.New(ctx, usageConfig(appCfg.Usage), appCfg.Storage)
	if err != nil {
		closeErr := closeSource(source)
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize usage tracking: %w (also: source close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}
	app.usage = usageResult

	var hooks providers.Hooks = providers.NoopHooks{}
	var metricsHandler http.Handler
	if appCfg.Metrics.Enabled {
		registry := cfg.Registry
		if registry == nil {
			registry = prometheus.NewRegistry()
		}
		hooks = observability.NewPrometheusHooks(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	app.loader = providers.NewLoader(source,
		providers.WithReuseUnchanged(appCfg.Providers.ReuseUnchanged),
		providers.WithLoaderHooks(hooks),
	)

	dispatcher, err := providers.NewDispatcher(cfg.Factory, hooks)
	if err != nil {
		closeErr := errors.Join(app.usage.Close(), closeSource(source))
		if closeErr != nil {
			return nil, fmt.Errorf("failed to create dispatcher: %w (also: close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	app.logStartupInfo(cfg.Factory)

	serverCfg := &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		MetricsHandler:  metricsHandler,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		SwaggerEnabled:  appCfg.Server.SwaggerEnabled,
		UsageRecorder:   usageResult.Logger,
		UsageReader:     usageResult.Reader,
	}
	app.server = server.New(app.loader, dispatcher, serverCfg)

	return app, nil
}

func newSource(cfg config.ProvidersConfig) (providers.Source, error) {
	switch cfg.Source {
	case config.SourceRedis:
		return providers.NewRedisSource(providers.RedisConfig{URL: cfg.RedisURL, Key: cfg.RedisKey})
	case config.SourceFile, "":
		return providers.NewFileSource(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown provider source: %s", cfg.Source)
	}
}

func closeSource(source providers.Source) error {
	if c, ok := source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func usageConfig(cfg config.UsageConfig) usage.Config {
	return usage.Config{
		Enabled:       cfg.Enabled,
		BufferSize:    cfg.BufferSize,
		FlushInterval: time.Duration(cfg.FlushInterval) * time.Second,
		RetentionDays: cfg.RetentionDays,
	}
}

// Server returns the HTTP server, which also serves as an http.Handler.
func (a *App) Server() *server.Server {
	return a.server
}

// Loader returns the provider configuration loader.
func (a *App) Loader() *providers.Loader {
	return a.loader
}

// UsageLogger returns the usage recorder.
func (a *App) UsageLogger() usage.Recorder {
	if a.usage == nil {
		return nil
	}
	return a.usage.Logger
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, honoring ctx, then the usage logger (flushing
// pending entries and closing storage), then the provider source.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every step and returns the joined failures.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			slog.Error("usage logger close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	if a.source != nil {
		if err := closeSource(a.source); err != nil {
			slog.Error("provider source close error", "error", err)
			errs = append(errs, fmt.Errorf("source close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(factory *providers.ProviderFactory) {
	cfg := a.config

	// Security warnings
	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: CHATGATE_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set CHATGATE_MASTER_KEY environment variable to secure this gateway")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	slog.Info("provider configuration source",
		"source", a.source.String(),
		"reuse_unchanged", cfg.Providers.ReuseUnchanged,
		"provider_types", factory.RegisteredTypes(),
	)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Usage.Enabled {
		slog.Info("usage tracking enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		slog.Info("usage tracking disabled")
	}

	if cfg.Server.SwaggerEnabled {
		slog.Info("swagger UI enabled", "path", "/swagger/index.html")
	}
}
