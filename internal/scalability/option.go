// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scalability decides how many video pipes cooperate on one frame
// and how the frame is split between them.
package scalability

import (
	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/mhw"
)

// Mode is the multi-pipe topology.
type Mode int

const (
	ModeSingle Mode = iota
	// ModeVirtualTile splits the CTB grid evenly between pipes regardless
	// of the bitstream's tile structure.
	ModeVirtualTile
	// ModeRealTile maps bitstream tile columns to pipes.
	ModeRealTile
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeVirtualTile:
		return "virtual_tile"
	case ModeRealTile:
		return "real_tile"
	default:
		return "unknown"
	}
}

// Reason explains which rule produced a decision.
type Reason string

const (
	ReasonSinglePipePlatform Reason = "single_pipe_platform"
	ReasonUserDisabled       Reason = "user_disabled"
	ReasonScreenContent      Reason = "screen_content"
	ReasonRealTile           Reason = "real_tile"
	ReasonLargeResolution    Reason = "large_resolution"
	ReasonTypicalResolution  Reason = "typical_resolution"
	ReasonSmallResolution    Reason = "small_resolution"
	ReasonUserForced         Reason = "user_forced"
)

// RateControl is the encoder rate control mode. Decode pipelines always
// carry RateControlNone.
type RateControl int

const (
	RateControlNone RateControl = iota
	RateControlCBR
	RateControlVBR
	RateControlCQP
)

// Overrides are per-frame user settings.
type Overrides struct {
	DisableScalability bool
	ForceMultiPipe     bool
	// UserPipes is the pipe count used with ForceMultiPipe. Values below 2
	// select every hardware pipe.
	UserPipes       int
	DisableRealTile bool
	// RealTileMultiPhase allows more tile columns than pipes by decoding
	// them in several passes. Without it a frame with more tile columns
	// than hardware pipes is not eligible for real tile and falls through
	// to the resolution rules. The configuration defaults it to true; the
	// zero Overrides leave it off.
	RealTileMultiPhase bool
}

// OverridesFrom converts the configured user settings.
func OverridesFrom(o config.Overrides) Overrides {
	return Overrides{
		DisableScalability: o.DisableScalability,
		ForceMultiPipe:     o.ForceMultiPipe,
		UserPipes:          o.UserPipes,
		DisableRealTile:    o.DisableRealTile,
		RealTileMultiPhase: o.RealTileMultiPhase,
	}
}

// Pars is the immutable input of one decision.
type Pars struct {
	FrameWidth, FrameHeight int
	// CTBLog2 sizes the grid used for virtual tile partitioning. Zero means
	// 64x64 blocks.
	CTBLog2       int
	TileColumns   int
	TileRows      int
	ScreenContent bool
	UsingSFC      bool
	HWPipes       int
	RateControl   RateControl
	Overrides     Overrides
}

// Limits are the platform constants the decision list consults.
type Limits struct {
	MaxRealTileColumns     int
	MaxRealTileRows        int
	TypicalThresholdPixels int
	LargeThresholdPixels   int
	TypicalPipes           int
	MaxVirtualTilePipes    int
	FESeparateMinPipes     int
	MinCTBColumnsPerPipe   int
	RealTileSupported      bool
}

// LimitsFor combines platform configuration with generation traits.
func LimitsFor(pc config.PlatformConfig, t mhw.Traits) Limits {
	l := Limits{
		MaxRealTileColumns:     pc.MaxRealTileColumns,
		MaxRealTileRows:        pc.MaxRealTileRows,
		TypicalThresholdPixels: pc.TypicalThresholdPixels,
		LargeThresholdPixels:   pc.LargeThresholdPixels,
		TypicalPipes:           pc.TypicalPipes,
		MaxVirtualTilePipes:    pc.MaxVirtualTilePipes,
		FESeparateMinPipes:     pc.FESeparateMinPipes,
		MinCTBColumnsPerPipe:   pc.MinCTBColumnsPerPipe,
		RealTileSupported:      t.RealTile,
	}
	if t.MaxVirtualTilePipes > 0 && t.MaxVirtualTilePipes < l.MaxVirtualTilePipes {
		l.MaxVirtualTilePipes = t.MaxVirtualTilePipes
	}
	return l
}

// Option is the derived topology. Two options are equal iff every field
// matches, so == is the match predicate.
type Option struct {
	NumPipe int
	Mode    Mode
	// FESeparate submits front-end parsing on its own context ahead of
	// the back-end pipes.
	FESeparate  bool
	UsingSFC    bool
	RateControl RateControl
}

// Decision is an Option plus the rule that produced it.
type Decision struct {
	Option Option
	Reason Reason
}
