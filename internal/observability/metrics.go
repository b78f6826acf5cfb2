package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pricing pipeline and HTTP API metrics.
//
// Usage:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.ObserveRecords(report.Accepted, report.Filtered+report.Superseded, report.Failed)
//	metrics.ObserveLoad("upstream", time.Since(start).Seconds())
type Metrics struct {
	// RecordsCounter counts normalized records by outcome.
	// Labels: outcome (accepted|dropped|failed)
	RecordsCounter *prometheus.CounterVec

	// AnomalyCounter counts pricing anomalies.
	// Labels: field (inputText|outputText|...), kind (suspiciously_low|suspiciously_high|verify)
	AnomalyCounter *prometheus.CounterVec

	// LoadDuration measures a full fetch-normalize-save cycle in seconds.
	// Labels: source (upstream|file|store)
	// Buckets: 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s
	LoadDuration *prometheus.HistogramVec

	// Models is the number of models in the current graph.
	Models prometheus.Gauge

	// UpstreamRequests counts upstream fetch attempts.
	// Labels: status (HTTP status code or "error")
	UpstreamRequests *prometheus.CounterVec

	// StoreDuration measures storage operations.
	// Labels: driver, operation (load|save|backup), status (success|error)
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StoreDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with reg. A nil reg uses
// the Prometheus default registerer, which is what /metrics serves.
// Registering twice with the same registerer panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecordsCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferprice_records_total",
				Help: "Total number of upstream records by normalization outcome",
			},
			[]string{"outcome"},
		),

		AnomalyCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferprice_pricing_anomalies_total",
				Help: "Total number of pricing anomalies by field and kind",
			},
			[]string{"field", "kind"},
		),

		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inferprice_load_duration_seconds",
				Help:    "Duration of pricing data loads in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		),

		Models: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inferprice_models",
				Help: "Number of models in the current pricing graph",
			},
		),

		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferprice_upstream_requests_total",
				Help: "Total number of upstream fetch attempts by status",
			},
			[]string{"status"},
		),

		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inferprice_store_operation_duration_seconds",
				Help:    "Duration of storage operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"driver", "operation", "status"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferprice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inferprice_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveRecords adds one normalization pass to the record counters.
func (m *Metrics) ObserveRecords(accepted, dropped, failed int) {
	m.RecordsCounter.WithLabelValues("accepted").Add(float64(accepted))
	m.RecordsCounter.WithLabelValues("dropped").Add(float64(dropped))
	m.RecordsCounter.WithLabelValues("failed").Add(float64(failed))
}

// RecordAnomaly increments the anomaly counter.
//
//	metrics.RecordAnomaly("inputText", "suspiciously_high")
func (m *Metrics) RecordAnomaly(field, kind string) {
	m.AnomalyCounter.WithLabelValues(field, kind).Inc()
}

// ObserveLoad records the duration of a load from source.
func (m *Metrics) ObserveLoad(source string, durationSeconds float64) {
	m.LoadDuration.WithLabelValues(source).Observe(durationSeconds)
}

// SetModels sets the current model count.
func (m *Metrics) SetModels(n int) {
	m.Models.Set(float64(n))
}

// RecordUpstreamRequest counts one upstream attempt.
func (m *Metrics) RecordUpstreamRequest(status string) {
	m.UpstreamRequests.WithLabelValues(status).Inc()
}

// RecordStoreOperation records a storage operation.
//
//	start := time.Now()
//	err := store.Save(ctx, graph)
//	metrics.RecordStoreOperation("sqlite", "save", StatusOf(err), time.Since(start).Seconds())
func (m *Metrics) RecordStoreOperation(driver, operation, status string, durationSeconds float64) {
	m.StoreDuration.WithLabelValues(driver, operation, status).Observe(durationSeconds)
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// StatusOf maps an error to a success|error label value.
func StatusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
