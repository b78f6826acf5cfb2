package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewTracerFromProvider(provider), recorder
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracer_NoEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer func() { _ = shutdown(context.Background()) }()

	if tracer == nil || tracer.tracer == nil {
		t.Fatal("NewTracer() returned an unusable tracer")
	}
	if tracer.config.ServiceName != "inferprice" {
		t.Errorf("ServiceName = %q", tracer.config.ServiceName)
	}
	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()
	if GetTraceID(ctx) != "" {
		t.Error("no-op tracer should not produce a valid trace id")
	}
}

func TestTracer_DomainSpans(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	ctx := context.Background()

	_, fetch := tracer.TraceFetch(ctx, "https://example.test/models")
	fetch.End()
	_, norm := tracer.TraceNormalize(ctx, "upstream")
	norm.End()
	_, store := tracer.TraceStore(ctx, "sqlite", "save")
	store.End()

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	if spans[0].Name() != "upstream.fetch" || spans[0].SpanKind() != trace.SpanKindClient {
		t.Errorf("fetch span = %s/%v", spans[0].Name(), spans[0].SpanKind())
	}
	if v, ok := attr(spans[1], "pricing.source"); !ok || v.AsString() != "upstream" {
		t.Errorf("pricing.source = %v", v)
	}
	if spans[2].Name() != "store.save" {
		t.Errorf("store span = %s", spans[2].Name())
	}
	if v, _ := attr(spans[2], "db.system"); v.AsString() != "sqlite" {
		t.Errorf("db.system = %v", v)
	}
}

func TestTracer_TraceHTTPRequest(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/models?sort=inputPrice", nil)

	ctx, span := tracer.TraceHTTPRequest(req, "/api/models")
	if GetTraceID(ctx) == "" {
		t.Error("expected a trace id in the request context")
	}
	span.End()

	got := recorder.Ended()[0]
	if got.Name() != "GET /api/models" || got.SpanKind() != trace.SpanKindServer {
		t.Errorf("span = %s/%v", got.Name(), got.SpanKind())
	}
}

func TestTracer_RecordError(t *testing.T) {
	tracer, recorder := recordingTracer(t)

	err := WithSpan(context.Background(), tracer, "failing", func(context.Context, trace.Span) error {
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("WithSpan() should return the error")
	}
	_ = WithSpan(context.Background(), tracer, "ok", func(context.Context, trace.Span) error { return nil })

	spans := recorder.Ended()
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "boom" {
		t.Errorf("status = %+v", spans[0].Status())
	}
	if spans[1].Status().Code == codes.Error {
		t.Error("successful span marked as error")
	}

	_, span := tracer.Start(context.Background(), "nil-error")
	tracer.RecordError(span, nil)
	span.End()
	if recorder.Ended()[2].Status().Code == codes.Error {
		t.Error("nil error should not change status")
	}
}

func TestTracer_SetAttributes(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	_, span := tracer.Start(context.Background(), "attrs")
	tracer.SetAttributes(span, "models", 12, "shape", "wrapped", 42, "ignored", "ratio", 0.5, "dangling")
	span.End()

	got := recorder.Ended()[0]
	if v, _ := attr(got, "models"); v.AsInt64() != 12 {
		t.Errorf("models = %v", v)
	}
	if v, _ := attr(got, "ratio"); v.AsFloat64() != 0.5 {
		t.Errorf("ratio = %v", v)
	}
	if len(got.Attributes()) != 3 {
		t.Errorf("got %d attributes, want 3", len(got.Attributes()))
	}
}
