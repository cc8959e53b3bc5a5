package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flemzord/parserdesk/internal/config"
)

func TestNewTracerProvider(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(rec, config.TracingConfig{ServiceName: "pd-test"}, "v1.2.3")
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "conversation.turn")
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Resource().Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["service.name"] != "pd-test" || attrs["service.version"] != "v1.2.3" {
		t.Errorf("resource = %v", attrs)
	}
}

func TestNewTracerProvider_ZeroRatioSamplesAll(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(rec, config.TracingConfig{}, "dev")
	_, span := tp.Tracer("test").Start(context.Background(), "x")
	span.End()
	if len(rec.Ended()) != 1 {
		t.Error("an unset ratio should sample every span")
	}
	var _ sdktrace.SpanProcessor = rec
}

func TestSetupTracing_Disabled(t *testing.T) {
	tp, shutdown, err := SetupTracing(context.Background(), config.TracingConfig{}, "dev")
	if err != nil {
		t.Fatal(err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "x")
	if span.SpanContext().IsValid() {
		t.Error("no-op provider should produce invalid span contexts")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
