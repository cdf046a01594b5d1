package observability

import "context"

type correlationKey int

const (
	runIDKey correlationKey = iota
	sessionIDKey
	toolCallIDKey
)

// WithRunID attaches a run identifier to the context for log/metric correlation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID returns the run identifier attached to ctx, or "" if none.
func GetRunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// WithSessionID attaches a session identifier to the context for log/metric correlation.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID returns the session identifier attached to ctx, or "" if none.
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// AddToolCallID attaches a tool call identifier to the context so nested
// execution (timeouts, panics) can be logged against the originating call.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, toolCallID)
}

// GetToolCallID returns the tool call identifier attached to ctx, or "" if none.
func GetToolCallID(ctx context.Context) string {
	v, _ := ctx.Value(toolCallIDKey).(string)
	return v
}
