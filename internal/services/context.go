package services

import "context"

type contextKey string

const (
	sourceIDKey  contextKey = "source_id"
	stageKey     contextKey = "stage"
	poolKey      contextKey = "pool"
	requestIDKey contextKey = "request_id"
)

// WithSourceID annotates context with the source identifier being processed.
func WithSourceID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, sourceIDKey, id)
}

// SourceIDFromContext extracts the source identifier if present.
func SourceIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(sourceIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the pipeline stage name (fetch, transcribe,
// diarize, identify, segment, embed, persist).
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithPool annotates context with the worker pool name (io, gpu, db).
func WithPool(ctx context.Context, pool string) context.Context {
	if pool == "" {
		return ctx
	}
	return context.WithValue(ctx, poolKey, pool)
}

// PoolFromContext returns the worker pool name if present.
func PoolFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(poolKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
