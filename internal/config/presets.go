// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"sort"
	"time"
)

// DefaultPreset is used when neither file nor environment selects one.
const DefaultPreset = "tgl"

var presets = map[string]PlatformConfig{
	"tgl": {
		Generation:             "gen12",
		VideoPipes:             2,
		MaxRealTileColumns:     20,
		MaxRealTileRows:        22,
		TypicalThresholdPixels: 5120 * 2160,
		LargeThresholdPixels:   7680 * 4320,
		TypicalPipes:           2,
		MaxVirtualTilePipes:    8,
		FESeparateMinPipes:     3,
		MinCTBColumnsPerPipe:   2,
		WatchdogThreshold:      256,
		StatusDepth:            512,
		SyncTokens:             64,
		AuthRingDepth:          4,
	},
	"dg2": {
		Generation:             "xe_hpm",
		VideoPipes:             2,
		MaxRealTileColumns:     20,
		MaxRealTileRows:        22,
		TypicalThresholdPixels: 5120 * 2160,
		LargeThresholdPixels:   7680 * 4320,
		TypicalPipes:           2,
		MaxVirtualTilePipes:    8,
		FESeparateMinPipes:     3,
		MinCTBColumnsPerPipe:   2,
		WatchdogThreshold:      256,
		StatusDepth:            512,
		SyncTokens:             64,
		AuthRingDepth:          4,
	},
	"mtl": {
		Generation:             "xe_lpm_plus",
		VideoPipes:             2,
		MaxRealTileColumns:     20,
		MaxRealTileRows:        22,
		TypicalThresholdPixels: 5120 * 2160,
		LargeThresholdPixels:   7680 * 4320,
		TypicalPipes:           2,
		MaxVirtualTilePipes:    8,
		FESeparateMinPipes:     3,
		MinCTBColumnsPerPipe:   2,
		WatchdogThreshold:      512,
		StatusDepth:            512,
		SyncTokens:             64,
		AuthRingDepth:          4,
	},
}

// Preset returns the platform defaults registered under name.
func Preset(name string) (PlatformConfig, error) {
	p, ok := presets[name]
	if !ok {
		return PlatformConfig{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPreset, name, PresetNames())
	}
	p.Preset = name
	return p, nil
}

// PresetNames lists the built-in presets in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Defaults returns a complete configuration for the given preset.
func Defaults(preset string) (Config, error) {
	p, err := Preset(preset)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Log: LogConfig{Level: "info", Service: "mediahal"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "development",
			SamplingRate: 1.0,
		},
		Platform:  p,
		Overrides: Overrides{RealTileMultiPhase: true},
		Status:    StatusConfig{PollInterval: time.Millisecond},
	}, nil
}
