// Package context carries per-operation tracing values through context.Context.
package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext identifies one unit of work (a CLI run, a session transaction).
type TraceContext struct {
	TraceID   string
	SessionID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns trace ID from context or empty string.
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return ""
}

// NewTraceContext creates a TraceContext for the given session with a fresh trace ID.
func NewTraceContext(sessionID string) *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		SessionID: sessionID,
	}
}
