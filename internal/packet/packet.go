// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package packet turns feature state into hardware commands, one pipeline
// stage at a time.
//
// Per frame a packet sees Prepare once, CalculateCommandSize any number of
// times and Execute once per command buffer it contributes to. Packets
// never call each other; the pipeline decides the order.
package packet

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

// ID names a packet within one owner.
type ID int

const (
	IDPicture ID = iota + 1
	IDSlice
	IDTile
	IDFirmwareLoad
	IDFirmwareAuth
	IDDownSampling
)

func (id ID) String() string {
	switch id {
	case IDPicture:
		return "picture"
	case IDSlice:
		return "slice"
	case IDTile:
		return "tile"
	case IDFirmwareLoad:
		return "firmware_load"
	case IDFirmwareAuth:
		return "firmware_auth"
	case IDDownSampling:
		return "down_sampling"
	default:
		return "unknown"
	}
}

// Stage is the role of the command buffer a packet writes into.
type Stage int

const (
	StageLong Stage = iota
	StageFrontEnd
	StageBackEnd
	StageRealTile
	StageFirmware
	StagePostProcess
)

func (s Stage) String() string {
	switch s {
	case StageLong:
		return "long"
	case StageFrontEnd:
		return "front_end"
	case StageBackEnd:
		return "back_end"
	case StageRealTile:
		return "real_tile"
	case StageFirmware:
		return "firmware"
	case StagePostProcess:
		return "post_process"
	default:
		return "unknown"
	}
}

// Engine returns the engine class a stage runs on.
func (s Stage) Engine() mos.Engine {
	switch s {
	case StageFirmware:
		return mos.EngineFirmware
	case StagePostProcess:
		return mos.EngineVideoProcess
	default:
		return mos.EngineVideo
	}
}

// PipeMode maps a decode stage to the mode programmed into the video
// engine. ok is false for stages outside the video engine.
func (s Stage) PipeMode() (mode mhw.PipeMode, ok bool) {
	switch s {
	case StageLong:
		return mhw.PipeModeLong, true
	case StageFrontEnd:
		return mhw.PipeModeFrontEnd, true
	case StageBackEnd:
		return mhw.PipeModeBackEnd, true
	case StageRealTile:
		return mhw.PipeModeRealTile, true
	default:
		return 0, false
	}
}

// Target selects the share of a frame one Execute call covers.
type Target struct {
	Stage Stage
	Pipe  int
	// Pass counts real tile passes. It is zero elsewhere.
	Pass int
}

// Packet is one pipeline stage's command producer.
type Packet interface {
	// Init allocates persistent scratch resources. It runs once.
	Init(ctx context.Context) error
	// Prepare snapshots the features the packet reads for this frame.
	Prepare() error
	// CalculateCommandSize bounds the bytes Execute appends for the
	// prepared state, for any Target.
	CalculateCommandSize() int
	Execute(cb *mos.CommandBuffer, t Target) error
	// Destroy frees what Init and Prepare allocated.
	Destroy() error
}

// Deps are shared by every packet of one pipeline.
type Deps struct {
	Features  *feature.Manager
	Emitter   mhw.Emitter
	Traits    mhw.Traits
	Resources mos.ResourceService
	Logger    zerolog.Logger
}

func (d Deps) validate(op string) error {
	if d.Features == nil || d.Emitter == nil || d.Resources == nil {
		return errs.New(errs.CodeInvalidParameter, op, "features, emitter and resources are required")
	}
	return nil
}

func wrongStage(id ID, t Target) error {
	return errs.New(errs.CodeInvalidParameter, id.String(), "stage %s not handled", t.Stage)
}
