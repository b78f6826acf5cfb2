package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// instrumented records metrics and spans around every store operation.
type instrumented struct {
	Store
	driver  string
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Instrument wraps s so that loads and saves are timed and traced. Either
// of metrics or tracer may be nil.
func Instrument(s Store, driver string, metrics *observability.Metrics, tracer *observability.Tracer) Store {
	if metrics == nil && tracer == nil {
		return s
	}
	return &instrumented{Store: s, driver: driver, metrics: metrics, tracer: tracer}
}

func (s *instrumented) Load(ctx context.Context) (*models.Graph, error) {
	var g *models.Graph
	err := s.observe(ctx, "load", func(ctx context.Context) error {
		var err error
		g, err = s.Store.Load(ctx)
		return err
	})
	return g, err
}

func (s *instrumented) Save(ctx context.Context, g *models.Graph) error {
	return s.observe(ctx, "save", func(ctx context.Context) error {
		return s.Store.Save(ctx, g)
	})
}

// Unwrap returns the underlying store.
func (s *instrumented) Unwrap() Store {
	return s.Store
}

func (s *instrumented) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.TraceStore(ctx, s.driver, op)
		defer span.End()
	}
	err := fn(ctx)

	// Nothing stored yet is an expected state on first start.
	failed := err
	if errors.Is(err, ErrNotFound) {
		failed = nil
	}
	if span != nil {
		s.tracer.RecordError(span, failed)
	}
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(s.driver, op, observability.StatusOf(failed), time.Since(start).Seconds())
	}
	return err
}

// AsHistory returns the HistoryStore behind s, unwrapping instrumentation.
func AsHistory(s Store) (HistoryStore, bool) {
	for s != nil {
		if h, ok := s.(HistoryStore); ok {
			return h, true
		}
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}
