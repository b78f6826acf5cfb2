// Package loader keeps the current pricing graph: it fetches the upstream
// listing, normalizes it, saves it and serves a cached snapshot.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/inferprice/internal/normalize"
	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/storage"
	"github.com/haasonsaas/inferprice/internal/upstream"
	"github.com/haasonsaas/inferprice/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// SourceStore labels loads that read the store instead of the upstream.
const SourceStore = "store"

// Options configures a Loader.
type Options struct {
	// Source is optional; without it the loader only serves the store.
	Source upstream.Source
	// Store defaults to an in-memory store.
	Store storage.Store
	// Normalizer defaults to normalize.New with default options.
	Normalizer *normalize.Normalizer
	// CacheTTL is how long a snapshot is served before a refresh. Zero
	// never expires.
	CacheTTL time.Duration
	// Fallback serves upstream.FallbackGraph when the first fetch fails.
	Fallback bool

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

// Result describes one load.
type Result struct {
	Graph *models.Graph
	// Report is set for loads that ran normalization.
	Report   *normalize.Report
	Source   string
	Duration time.Duration
	Fallback bool
}

// Status summarizes the current snapshot.
type Status struct {
	Loaded   bool              `json:"loaded"`
	LoadedAt time.Time         `json:"loadedAt,omitempty"`
	Source   string            `json:"source,omitempty"`
	Models   int               `json:"models"`
	Fallback bool              `json:"fallback,omitempty"`
	Report   *normalize.Report `json:"report,omitempty"`
}

// Loader owns the current graph snapshot. Snapshots are replaced, never
// modified, so a graph returned by Graph stays consistent; callers must
// not modify it.
type Loader struct {
	source     upstream.Source
	store      storage.Store
	normalizer *normalize.Normalizer
	ttl        time.Duration
	fallback   bool
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	current *models.Graph
	status  Status

	refreshes flight[*Result]
}

// New creates a Loader.
func New(opts Options) *Loader {
	l := &Loader{
		source:     opts.Source,
		store:      opts.Store,
		normalizer: opts.Normalizer,
		ttl:        opts.CacheTTL,
		fallback:   opts.Fallback,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		now:        time.Now,
	}
	if l.store == nil {
		l.store = storage.NewMemoryStore()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.normalizer == nil {
		l.normalizer = normalize.New(normalize.Options{Logger: l.logger})
	}
	return l
}

// Store returns the backing store.
func (l *Loader) Store() storage.Store {
	return l.store
}

// Status returns a summary of the current snapshot.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Graph returns the current snapshot, refreshing it when it is missing or
// older than the cache TTL. When a refresh fails the stale snapshot is
// served.
func (l *Loader) Graph(ctx context.Context) (*models.Graph, error) {
	l.mu.RLock()
	g, loadedAt := l.current, l.status.LoadedAt
	l.mu.RUnlock()

	if g != nil && l.fresh(loadedAt) {
		return g, nil
	}

	if g == nil {
		res, err := l.Load(ctx)
		if err == nil {
			return res.Graph, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.WarnContext(ctx, "load stored graph failed", "error", err)
		}
	}

	if l.source == nil {
		if g != nil {
			return g, nil
		}
		return nil, storage.ErrNotFound
	}

	res, err := l.Refresh(ctx)
	if err != nil {
		if g != nil {
			l.logger.WarnContext(ctx, "refresh failed, serving stale graph",
				"loaded_at", loadedAt,
				"error", err,
			)
			return g, nil
		}
		return nil, err
	}
	return res.Graph, nil
}

func (l *Loader) fresh(loadedAt time.Time) bool {
	return l.ttl <= 0 || l.now().Sub(loadedAt) < l.ttl
}

// Load replaces the snapshot with the stored graph without fetching.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	start := l.now()
	g, err := l.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Graph: g, Source: SourceStore, Duration: l.now().Sub(start)}
	l.publish(res)
	return res, nil
}

// Refresh fetches, normalizes and saves a new graph. Concurrent calls share
// one run.
func (l *Loader) Refresh(ctx context.Context) (*Result, error) {
	res, err, _ := l.refreshes.do(func() (*Result, error) {
		return l.refresh(ctx)
	})
	return res, err
}

func (l *Loader) refresh(ctx context.Context) (*Result, error) {
	if l.source == nil {
		return nil, fmt.Errorf("no upstream source configured")
	}
	name := l.source.Name()
	ctx = observability.AddSource(ctx, name)
	start := l.now()

	data, err := l.source.Fetch(ctx)
	if err != nil {
		if l.fallback && l.Status().Source == "" {
			l.logger.WarnContext(ctx, "upstream unavailable, serving fallback graph", "error", err)
			res := &Result{Graph: upstream.FallbackGraph(), Source: name, Fallback: true, Duration: l.now().Sub(start)}
			l.publish(res)
			return res, nil
		}
		return nil, err
	}

	g, report, err := l.normalize(ctx, name, data)
	if err != nil {
		return nil, err
	}

	if err := l.store.Save(ctx, g); err != nil && !errors.Is(err, storage.ErrEmpty) {
		return nil, fmt.Errorf("save graph: %w", err)
	}

	res := &Result{Graph: g, Report: report, Source: name, Duration: l.now().Sub(start)}
	l.publish(res)
	l.logger.InfoContext(ctx, "pricing graph refreshed",
		"models", len(g.Models),
		"categories", len(g.Categories),
		"vendors", len(g.Vendors),
		"failed", report.Failed,
		"anomalies", len(report.Anomalies),
		"duration", res.Duration,
	)
	return res, nil
}

func (l *Loader) normalize(ctx context.Context, source string, data []byte) (*models.Graph, *normalize.Report, error) {
	var span trace.Span
	if l.tracer != nil {
		ctx, span = l.tracer.TraceNormalize(ctx, source)
		defer span.End()
	}

	g, report, err := l.normalizer.NormalizeJSON(ctx, data)
	if err != nil {
		err = fmt.Errorf("normalize %s payload: %w", source, err)
		if span != nil {
			l.tracer.RecordError(span, err)
		}
		return nil, nil, err
	}
	if span != nil {
		l.tracer.SetAttributes(span,
			"models.accepted", report.Accepted,
			"models.failed", report.Failed,
			"payload.shape", string(report.Shape),
		)
	}

	if l.metrics != nil {
		dropped := report.Filtered + report.Superseded + report.Hidden + report.Orphaned
		l.metrics.ObserveRecords(report.Accepted, dropped, report.Failed)
		for _, a := range report.Anomalies {
			l.metrics.RecordAnomaly(a.Field, string(a.Kind))
		}
	}
	return g, report, nil
}

// publish swaps in a new snapshot.
func (l *Loader) publish(res *Result) {
	l.mu.Lock()
	l.current = res.Graph
	l.status = Status{
		Loaded:   true,
		LoadedAt: l.now(),
		Source:   res.Source,
		Models:   len(res.Graph.Models),
		Fallback: res.Fallback,
		Report:   res.Report,
	}
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.SetModels(len(res.Graph.Models))
		l.metrics.ObserveLoad(res.Source, res.Duration.Seconds())
	}
}
