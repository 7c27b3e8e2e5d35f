package logging

import (
	"context"
	"log/slog"

	"gncimport/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStream is the standardized key for ingestion stream names.
	FieldStream = "stream"
	// FieldTag is the standardized key for sub-stream tags (band or subproduct).
	FieldTag = "tag"
	// FieldFile is the standardized key for the source file being processed.
	FieldFile = "file"
	// FieldStage is the standardized key for transform stage names.
	FieldStage = "stage"
	// FieldCycleID is the standardized key for poll cycle correlation identifiers.
	FieldCycleID = "cycle_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if v, ok := services.StreamFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStream, v))
	}
	if v, ok := services.TagFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTag, v))
	}
	if v, ok := services.FileFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFile, v))
	}
	if v, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, v))
	}
	if v, ok := services.CycleIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCycleID, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
