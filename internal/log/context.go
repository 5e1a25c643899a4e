// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	pipelineIDKey ctxKey = "pipeline_id"
	frameKey      ctxKey = "frame"
)

// ContextWithPipelineID stores the pipeline instance ID in the context.
func ContextWithPipelineID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, pipelineIDKey, id)
}

// ContextWithFrame stores the frame number in the context.
func ContextWithFrame(ctx context.Context, frame uint64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, frameKey, frame)
}

// PipelineIDFromContext extracts the pipeline ID from context if present.
func PipelineIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(pipelineIDKey).(string); ok {
		return v
	}
	return ""
}

// FrameFromContext extracts the frame number from context if present.
func FrameFromContext(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(frameKey).(uint64)
	return v, ok
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if pid := PipelineIDFromContext(ctx); pid != "" {
		builder = builder.Str(FieldPipelineID, pid)
		added = true
	}
	if frame, ok := FrameFromContext(ctx); ok {
		builder = builder.Uint64(FieldFrame, frame)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}
