package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToSkill derives the context a skill's factory and hooks run under.
// The trace and load IDs are kept.
func PropagateToSkill(ctx context.Context, skill string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithSkill(ctx, skill)
}

// LoggerFromContext adds the tracing fields in ctx to logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.LoadID != "" {
		lc = lc.Str("load_id", tc.LoadID)
	}
	if tc.Skill != "" {
		lc = lc.Str("skill", tc.Skill)
	}
	return lc.Logger()
}
