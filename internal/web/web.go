// Package web serves the pricing graph over a JSON HTTP API.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/inferprice/internal/loader"
	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/ratelimit"
	"github.com/haasonsaas/inferprice/internal/usage"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// GraphSource supplies the current pricing graph.
type GraphSource interface {
	Graph(ctx context.Context) (*models.Graph, error)
	Status() loader.Status
}

// Config holds HTTP API configuration.
type Config struct {
	// Graphs supplies the pricing graph (required).
	Graphs GraphSource
	// Sample prices the cost columns of /api/models. Defaults to
	// usage.DefaultSample.
	Sample *usage.Sample
	// AllowedOrigins enables CORS for the listed origins; "*" allows any.
	AllowedOrigins []string
	// RateLimit limits /api requests per client; nil disables it.
	RateLimit *ratelimit.Limiter
	// Gatherer backs /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Logger   *slog.Logger
}

// Handler is the HTTP API handler.
type Handler struct {
	config *Config
	sample usage.Sample
	mux    *http.ServeMux
}

// NewHandler creates a new API handler.
func NewHandler(cfg *Config) *Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	h := &Handler{
		config: cfg,
		sample: usage.DefaultSample(),
		mux:    http.NewServeMux(),
	}
	if cfg.Sample != nil {
		h.sample = *cfg.Sample
	}

	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/api/models", h.apiModels)
	h.mux.HandleFunc("/api/estimate", h.apiEstimate)
	h.mux.HandleFunc("/api/categories", h.apiCategories)
	h.mux.HandleFunc("/api/vendors", h.apiVendors)
	h.mux.HandleFunc("/api/export.csv", h.apiExport)
	h.mux.HandleFunc("/api/export.json", h.apiExport)
	h.mux.HandleFunc("/api/status", h.apiStatus)
	h.mux.HandleFunc("/healthz", h.handleHealth)
	h.mux.Handle("/metrics", promhttp.HandlerFor(h.config.Gatherer, promhttp.HandlerOpts{}))
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount returns the handler with middleware applied.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h

	if h.config.RateLimit != nil {
		handler = RateLimitMiddleware(h.config.RateLimit, h.config.Logger)(handler)
	}
	if h.config.Metrics != nil {
		handler = MetricsMiddleware(h.config.Metrics, h.route)(handler)
	}
	if h.config.Tracer != nil {
		handler = TracingMiddleware(h.config.Tracer, h.route)(handler)
	}
	if len(h.config.AllowedOrigins) > 0 {
		handler = CORSMiddleware(h.config.AllowedOrigins)(handler)
	}
	handler = LoggingMiddleware(h.config.Logger)(handler)
	handler = RequestIDMiddleware()(handler)

	return handler
}

// route returns the registered pattern serving r, which keeps metric and
// span labels bounded.
func (h *Handler) route(r *http.Request) string {
	if _, pattern := h.mux.Handler(r); pattern != "" {
		return pattern
	}
	return "unmatched"
}
