package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetLoadID(ctx) != "" || GetSkill(ctx) != "" {
		t.Fatal("empty context should carry no tracing values")
	}

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithLoadID(ctx, "load-1")
	ctx = WithSkill(ctx, "notes")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.LoadID != "load-1" || tc.Skill != "notes" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
}

func TestNewLoadContext(t *testing.T) {
	ctx := NewLoadContext(context.Background())
	if GetTraceID(ctx) == "" {
		t.Error("trace ID not generated")
	}
	if GetLoadID(ctx) == "" {
		t.Error("load ID not generated")
	}

	kept := NewLoadContext(WithTraceID(context.Background(), "trace-keep"))
	if GetTraceID(kept) != "trace-keep" {
		t.Error("existing trace ID was replaced")
	}
}
