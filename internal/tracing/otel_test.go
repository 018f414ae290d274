package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestStartSpan(t *testing.T) {
	if err := Init(Config{ServiceName: "skillhost-test", SampleRatio: 1}); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "skillhost/test", "test.span", attribute.String("skill", "notes"))
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Fatal("span context should be valid once a provider is installed")
	}
	if GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Error("trace ID not copied into context")
	}
}

func TestStartSpanKeepsTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "existing")
	ctx, span := StartSpan(ctx, "skillhost/test", "keep")
	defer span.End()

	if got := GetTraceID(ctx); got != "existing" {
		t.Errorf("trace ID = %q, want existing", got)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if err := Init(Config{}); err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestStartSpanNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is accepted on purpose
	ctx, span := StartSpan(nil, "skillhost/test", "nil.ctx")
	defer span.End()
	if ctx == nil {
		t.Fatal("context should not be nil")
	}
}

func TestFailNilError(t *testing.T) {
	span := trace.SpanFromContext(context.Background())
	Fail(span, nil)
	Fail(span, errors.New("boom"))
}
