package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the driver.
const (
	FrameNumberKey = "mediahal.frame.number"
	CodecKey       = "mediahal.codec"
	FunctionKey    = "mediahal.function"
	ResolutionKey  = "mediahal.frame.resolution"
	TileColumnsKey = "mediahal.frame.tile_columns"
	TileRowsKey    = "mediahal.frame.tile_rows"
	PipelineIDKey  = "mediahal.pipeline.id"

	ScalabilityModeKey   = "mediahal.scalability.mode"
	ScalabilityPipesKey  = "mediahal.scalability.num_pipe"
	ScalabilityReasonKey = "mediahal.scalability.reason"
	ScalabilityReuseKey  = "mediahal.scalability.reused"

	SubmissionsKey = "mediahal.submissions"
	ErrorCodeKey   = "error.code"
)

// FrameAttributes creates the per-frame span attributes.
func FrameAttributes(pipelineID, codec string, frame uint64, width, height, tileCols, tileRows int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(CodecKey, codec),
		attribute.Int64(FrameNumberKey, int64(frame)),
		attribute.String(ResolutionKey, fmt.Sprintf("%dx%d", width, height)),
		attribute.Int(TileColumnsKey, tileCols),
		attribute.Int(TileRowsKey, tileRows),
	}
	if pipelineID != "" {
		attrs = append(attrs, attribute.String(PipelineIDKey, pipelineID))
	}
	return attrs
}

// ScalabilityAttributes creates attributes describing the chosen option.
func ScalabilityAttributes(mode, reason string, numPipe int, reused bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ScalabilityModeKey, mode),
		attribute.String(ScalabilityReasonKey, reason),
		attribute.Int(ScalabilityPipesKey, numPipe),
		attribute.Bool(ScalabilityReuseKey, reused),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(code string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ErrorCodeKey, code)}
}
