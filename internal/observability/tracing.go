package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "inferprice"

// Span attribute keys shared by the pricing pipeline.
const (
	attrPricingSource = attribute.Key("pricing.source")
	attrUpstreamURL   = attribute.Key("http.url")
	attrStoreDriver   = attribute.Key("db.system")
	attrStoreOp       = attribute.Key("db.operation")
	attrHTTPMethod    = attribute.Key("http.method")
	attrHTTPRoute     = attribute.Key("http.route")
)

// TraceConfig selects where spans go. An empty Endpoint keeps tracing
// in-process only.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is an OTLP/gRPC collector address such as "localhost:4317".
	Endpoint string

	// SamplingRate is the recorded fraction of root spans. Zero means 1.
	SamplingRate float64

	Attributes map[string]string
	Insecure   bool
}

func (c TraceConfig) withDefaults() TraceConfig {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1
	}
	return c
}

// Tracer opens spans for fetches, normalization passes, store calls and
// API requests.
type Tracer struct {
	tracer trace.Tracer
	config TraceConfig
}

// NewTracer builds a tracer and the shutdown func that flushes it. Without
// an endpoint, or when the exporter cannot start, spans go to the global
// provider, which is a no-op unless something else installed one.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	config = config.withDefaults()
	noop := func(context.Context) error { return nil }

	if config.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}, noop
	}

	exporter, err := newExporter(config)
	if err != nil {
		return &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}, noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(config)),
		sdktrace.WithSampler(samplerFor(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(config.ServiceName), config: config}, provider.Shutdown
}

// NewTracerFromProvider wraps an existing provider, such as one built on
// a tracetest.SpanRecorder.
func NewTracerFromProvider(provider trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: provider.Tracer(defaultServiceName),
		config: TraceConfig{ServiceName: defaultServiceName},
	}
}

func newExporter(config TraceConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
}

func newResource(config TraceConfig) *resource.Resource {
	attrs := make([]attribute.KeyValue, 0, 3+len(config.Attributes))
	attrs = append(attrs,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	)
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return resource.Default()
	}
	return res
}

func samplerFor(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Start opens a span named name under ctx.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// RecordError marks span failed with err. A nil err is ignored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes attaches alternating key/value pairs to span. Pairs whose
// key is not a string are dropped, as is a trailing key with no value.
//
//	tracer.SetAttributes(span, "models.accepted", 212, "payload.shape", "wrapped")
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			attrs = append(attrs, toAttribute(attribute.Key(key), keyvals[i+1]))
		}
	}
	span.SetAttributes(attrs...)
}

func toAttribute(key attribute.Key, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return key.String(v)
	case bool:
		return key.Bool(v)
	case int:
		return key.Int(v)
	case int64:
		return key.Int64(v)
	case float64:
		return key.Float64(v)
	case []string:
		return key.StringSlice(v)
	case fmt.Stringer:
		return key.String(v.String())
	}
	return key.String(fmt.Sprint(val))
}

// TraceFetch opens a client span around a download of the model list.
func (t *Tracer) TraceFetch(ctx context.Context, url string) (context.Context, trace.Span) {
	return t.Start(ctx, "upstream.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrUpstreamURL.String(url)),
	)
}

// TraceNormalize opens a span around one normalization pass over a payload
// from source.
func (t *Tracer) TraceNormalize(ctx context.Context, source string) (context.Context, trace.Span) {
	return t.Start(ctx, "normalize", trace.WithAttributes(attrPricingSource.String(source)))
}

// TraceStore opens a client span named store.<operation>.
func (t *Tracer) TraceStore(ctx context.Context, driver, operation string) (context.Context, trace.Span) {
	return t.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrStoreDriver.String(driver), attrStoreOp.String(operation)),
	)
}

// TraceHTTPRequest opens a server span for r, continuing any trace carried
// in its headers.
func (t *Tracer) TraceHTTPRequest(r *http.Request, route string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return t.Start(ctx, r.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrHTTPMethod.String(r.Method), attrHTTPRoute.String(route)),
	)
}

// InjectHTTP propagates the trace in ctx to an outgoing request.
func (t *Tracer) InjectHTTP(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// WithSpan runs fn inside a span called name and records its error.
func WithSpan(ctx context.Context, tracer *Tracer, name string, fn func(context.Context, trace.Span) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	err := fn(ctx, span)
	tracer.RecordError(span, err)
	return err
}

// GetTraceID returns the active trace ID in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
