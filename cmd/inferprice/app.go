package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/inferprice/internal/catalog"
	"github.com/haasonsaas/inferprice/internal/config"
	"github.com/haasonsaas/inferprice/internal/loader"
	"github.com/haasonsaas/inferprice/internal/normalize"
	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/storage"
	"github.com/haasonsaas/inferprice/internal/upstream"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	rules   normalize.AnomalyRules
	store   storage.Store
	// files is set for the file driver so serve can watch it.
	files  *storage.FileStore
	loader *loader.Loader
	input  string

	shutdownTracer func(context.Context) error
}

type appOptions struct {
	// input reads the payload from a local file instead of the upstream.
	input string
	// persist saves an input payload to the configured store. Without it
	// an input payload is normalized into a throwaway memory store.
	persist bool
	// memory forces a throwaway memory store regardless of storage.driver.
	memory bool
	// registry enables metrics registered on it.
	registry prometheus.Registerer
	// logOutput defaults to stderr.
	logOutput io.Writer
}

// resolveConfigPath returns the config path and whether the user chose it.
func resolveConfigPath() (string, bool) {
	if p := strings.TrimSpace(configPath); p != "" {
		return p, true
	}
	if p := strings.TrimSpace(os.Getenv("INFERPRICE_CONFIG")); p != "" {
		return p, true
	}
	return defaultConfigName, false
}

// loadConfig loads the configuration file. A missing default file yields
// the built-in defaults; a missing explicit file is an error.
func loadConfig() (*config.Config, error) {
	path, explicit := resolveConfigPath()
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
		Output:    opts.logOutput,
	}).Slog()
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, input: opts.input}
	a.tracer, a.shutdownTracer = observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Attributes:     cfg.Tracing.Attributes,
		Insecure:       cfg.Tracing.Insecure,
	})
	if opts.registry != nil {
		a.metrics = observability.NewMetrics(opts.registry)
	}

	normalizer, err := a.normalizer()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	driver := cfg.Storage.Driver
	if opts.memory || (opts.input != "" && !opts.persist) {
		driver = config.DriverMemory
	}
	store, err := storage.Open(ctx, storage.Config{
		Driver: driver,
		Dir:    cfg.Storage.Dir,
		DSN:    cfg.Storage.DSN,
		Pool: &storage.PoolConfig{
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		},
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if fs, ok := store.(*storage.FileStore); ok {
		a.files = fs
	}
	a.store = storage.Instrument(store, driver, a.metrics, a.tracer)

	a.loader = loader.New(loader.Options{
		Source:     a.source(opts.input),
		Store:      a.store,
		Normalizer: normalizer,
		CacheTTL:   cfg.Source.CacheTTL,
		Fallback:   cfg.Source.Fallback,
		Metrics:    a.metrics,
		Tracer:     a.tracer,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) normalizer() (*normalize.Normalizer, error) {
	cls := a.cfg.Classification

	classifier := catalog.NewDefault()
	if cls.RulesFile != "" {
		rules, err := catalog.LoadRules(cls.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load classification rules: %w", err)
		}
		classifier = catalog.New(rules)
	}

	a.rules = normalize.DefaultAnomalyRules()
	if cls.Anomalies.SuspiciousLow > 0 {
		a.rules.SuspiciousLow = cls.Anomalies.SuspiciousLow
	}
	if cls.Anomalies.MaxInput > 0 {
		a.rules.MaxInput = cls.Anomalies.MaxInput
	}
	if cls.Anomalies.MaxOutput > 0 {
		a.rules.MaxOutput = cls.Anomalies.MaxOutput
	}
	if cls.Anomalies.Exceptions != nil {
		a.rules.Exceptions = cls.Anomalies.Exceptions
	}

	return normalize.New(normalize.Options{
		Classifier:        classifier,
		AllowedVendors:    cls.AllowedVendors,
		HiddenCategoryIDs: cls.HiddenCategoryIDs,
		Anomalies:         &a.rules,
		Logger:            a.logger,
	}), nil
}

func (a *app) source(input string) upstream.Source {
	if input != "" {
		return upstream.FileSource{Path: input}
	}
	if a.cfg.Source.File != "" {
		return upstream.FileSource{Path: a.cfg.Source.File}
	}
	return upstream.NewHTTPSource(upstream.Config{
		URL:       a.cfg.Source.URL,
		Timeout:   a.cfg.Source.Timeout,
		UserAgent: a.cfg.Source.UserAgent,
		Retry:     a.cfg.Source.Retry,
	},
		upstream.WithMetrics(a.metrics),
		upstream.WithTracer(a.tracer),
		upstream.WithLogger(a.logger),
	)
}

// graph returns the stored graph, fetching it when the store is empty.
// With an input file the payload is always normalized fresh.
func (a *app) graph(ctx context.Context) (*models.Graph, error) {
	if a.input != "" {
		res, err := a.loader.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return res.Graph, nil
	}
	return a.loader.Graph(ctx)
}

// Close releases the store and flushes traces.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Warn("shutdown tracer", "error", err)
		}
	}
}
