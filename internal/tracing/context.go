package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// LoadIDKey is the context key for the load or reload run
	LoadIDKey ContextKey = "load_id"
	// SkillKey is the context key for the skill being served
	SkillKey ContextKey = "skill"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	LoadID  string
	Skill   string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewLoadID generates a new load run ID
func NewLoadID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithLoadID adds a load run ID to the context
func WithLoadID(ctx context.Context, loadID string) context.Context {
	return context.WithValue(ctx, LoadIDKey, loadID)
}

// WithSkill adds a skill name to the context
func WithSkill(ctx context.Context, skill string) context.Context {
	return context.WithValue(ctx, SkillKey, skill)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetLoadID retrieves the load run ID from the context
func GetLoadID(ctx context.Context) string {
	if loadID, ok := ctx.Value(LoadIDKey).(string); ok {
		return loadID
	}
	return ""
}

// GetSkill retrieves the skill name from the context
func GetSkill(ctx context.Context) string {
	if skill, ok := ctx.Value(SkillKey).(string); ok {
		return skill
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		LoadID:  GetLoadID(ctx),
		Skill:   GetSkill(ctx),
	}
}

// NewLoadContext starts a load run, keeping an existing trace ID
func NewLoadContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithLoadID(ctx, NewLoadID())
}
