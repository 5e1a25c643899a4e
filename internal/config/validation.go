// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Validate checks cross-field constraints. It reports every problem at
// once, each wrapped in ErrInvalidConfig.
func Validate(cfg Config) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			add("log.level %q", cfg.Log.Level)
		}
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter %q (supported: grpc, http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.sampling_rate %v outside [0,1]", cfg.Telemetry.SamplingRate)
	}

	p := cfg.Platform
	if p.Generation == "" {
		add("platform.generation is required")
	}
	if p.VideoPipes < 1 {
		add("platform.video_pipes must be >= 1, got %d", p.VideoPipes)
	}
	if p.MaxRealTileColumns < 1 || p.MaxRealTileRows < 1 {
		add("platform real tile limits must be >= 1, got %dx%d", p.MaxRealTileColumns, p.MaxRealTileRows)
	}
	if p.TypicalThresholdPixels <= 0 || p.LargeThresholdPixels < p.TypicalThresholdPixels {
		add("platform thresholds must satisfy 0 < typical <= large, got %d/%d", p.TypicalThresholdPixels, p.LargeThresholdPixels)
	}
	if p.TypicalPipes < 2 {
		add("platform.typical_pipes must be >= 2, got %d", p.TypicalPipes)
	}
	if p.MaxVirtualTilePipes < p.TypicalPipes {
		add("platform.max_virtual_tile_pipes %d below typical_pipes %d", p.MaxVirtualTilePipes, p.TypicalPipes)
	}
	if p.FESeparateMinPipes < 2 {
		add("platform.fe_separate_min_pipes must be >= 2, got %d", p.FESeparateMinPipes)
	}
	if p.MinCTBColumnsPerPipe < 1 {
		add("platform.min_ctb_columns_per_pipe must be >= 1, got %d", p.MinCTBColumnsPerPipe)
	}
	if p.WatchdogThreshold == 0 {
		add("platform.watchdog_threshold must be > 0")
	}
	if p.StatusDepth < 1 {
		add("platform.status_depth must be >= 1, got %d", p.StatusDepth)
	}
	if p.SyncTokens < 4 {
		add("platform.sync_tokens must be >= 4, got %d", p.SyncTokens)
	}
	if p.AuthRingDepth < 1 {
		add("platform.auth_ring_depth must be >= 1, got %d", p.AuthRingDepth)
	}

	if cfg.Overrides.UserPipes < 0 {
		add("overrides.user_pipes must be >= 0, got %d", cfg.Overrides.UserPipes)
	}
	if cfg.Status.PollInterval <= 0 {
		add("status.poll_interval must be > 0")
	}

	return errors.Join(problems...)
}
