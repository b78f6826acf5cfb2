// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for inferprice.
//
// # Logging
//
// NewLogger builds a slog-based Logger whose handler redacts secrets (API
// keys, bearer tokens, DSN passwords) and adds request_id, source and
// command fields found in the context. Packages that only need a
// *slog.Logger take Logger.Slog().
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddSource(ctx, "upstream")
//	logger.Warn(ctx, "record skipped", "index", 4, "error", err)
//
// # Metrics
//
// NewMetrics registers the inferprice_* collectors with a registerer. The
// serve command builds a private registry that also backs /metrics.
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured
// and is a no-op otherwise. Span helpers cover the upstream fetch,
// normalization, storage operations and HTTP requests.
package observability
