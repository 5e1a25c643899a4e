// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads driver configuration with precedence
// ENV (MEDIAHAL_*) > file > platform preset defaults.
package config

import "time"

// Config is the full driver configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Platform  PlatformConfig  `yaml:"platform"`
	Overrides Overrides       `yaml:"overrides"`
	Status    StatusConfig    `yaml:"status"`
}

// LogConfig configures the zerolog base logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// TelemetryConfig configures tracing and otel metrics.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// PlatformConfig holds the hardware limits and decision thresholds of the
// target platform. Every field defaults from the selected preset.
type PlatformConfig struct {
	Preset     string `yaml:"preset"`
	Generation string `yaml:"generation"`
	VideoPipes int    `yaml:"video_pipes"`

	MaxRealTileColumns int `yaml:"max_real_tile_columns"`
	MaxRealTileRows    int `yaml:"max_real_tile_rows"`

	// Frame areas (width*height) at or above which virtual tile kicks in.
	TypicalThresholdPixels int `yaml:"typical_threshold_pixels"`
	LargeThresholdPixels   int `yaml:"large_threshold_pixels"`
	TypicalPipes           int `yaml:"typical_pipes"`
	MaxVirtualTilePipes    int `yaml:"max_virtual_tile_pipes"`
	FESeparateMinPipes     int `yaml:"fe_separate_min_pipes"`
	// Minimum CTB columns each pipe must own in a virtual tile split.
	MinCTBColumnsPerPipe int `yaml:"min_ctb_columns_per_pipe"`

	// Commands the firmware engine may execute after the watchdog is armed.
	WatchdogThreshold uint32 `yaml:"watchdog_threshold"`
	StatusDepth       int    `yaml:"status_depth"`
	SyncTokens        int    `yaml:"sync_tokens"`
	AuthRingDepth     int    `yaml:"auth_ring_depth"`
}

// Overrides are user settings read once per frame by running pipelines.
// They are the only section a hot reload applies.
type Overrides struct {
	DisableScalability bool `yaml:"disable_scalability"`
	ForceMultiPipe     bool `yaml:"force_multi_pipe"`
	UserPipes          int  `yaml:"user_pipes"`
	DisableRealTile    bool `yaml:"disable_real_tile"`
	RealTileMultiPhase bool `yaml:"real_tile_multi_phase"`
}

// StatusConfig configures completion polling.
type StatusConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}
