package services

import "context"

type contextKey string

const (
	streamKey  contextKey = "stream"
	tagKey     contextKey = "tag"
	fileKey    contextKey = "file"
	stageKey   contextKey = "stage"
	cycleIDKey contextKey = "cycle_id"
)

// WithStream annotates context with the ingestion stream name.
func WithStream(ctx context.Context, stream string) context.Context {
	if stream == "" {
		return ctx
	}
	return context.WithValue(ctx, streamKey, stream)
}

// StreamFromContext returns the stream name if present.
func StreamFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, streamKey)
}

// WithTag annotates context with the sub-stream tag (band or subproduct).
func WithTag(ctx context.Context, tag string) context.Context {
	if tag == "" {
		return ctx
	}
	return context.WithValue(ctx, tagKey, tag)
}

// TagFromContext returns the sub-stream tag if present.
func TagFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, tagKey)
}

// WithFile annotates context with the source file name being processed.
func WithFile(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, fileKey, name)
}

// FileFromContext returns the source file name if present.
func FileFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, fileKey)
}

// WithStage annotates context with the transform stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithCycleID annotates context with the correlation identifier of a poll cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext extracts the cycle correlation identifier if present.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, cycleIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
