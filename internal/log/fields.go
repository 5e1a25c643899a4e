package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldInstanceID = "instance_id"
	FieldPipelineID = "pipeline_id"
	FieldFrame      = "frame"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPhase     = "phase"
	FieldPacket    = "packet"
	FieldPass      = "pass"
	FieldPipe      = "pipe"

	// Media fields
	FieldCodec      = "codec"
	FieldFunction   = "function"
	FieldResolution = "resolution"
	FieldTileCols   = "tile_cols"
	FieldTileRows   = "tile_rows"

	// Hardware fields
	FieldEngine     = "engine"
	FieldGeneration = "generation"
	FieldMode       = "mode"
	FieldNumPipe    = "num_pipe"
	FieldFence      = "fence"
	FieldSlot       = "slot"
	FieldBytes      = "bytes"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldCode     = "code"
	FieldReason   = "reason"
)
