// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mediahal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", zerolog.Nop()).Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPreset, cfg.Platform.Preset)
	assert.Equal(t, "gen12", cfg.Platform.Generation)
	assert.Equal(t, 512, cfg.Platform.StatusDepth)
	assert.Equal(t, 5120*2160, cfg.Platform.TypicalThresholdPixels)
	assert.Equal(t, 7680*4320, cfg.Platform.LargeThresholdPixels)
	assert.Equal(t, "mediahal", cfg.Log.Service)
}

func TestLoad_FileOverridesPreset(t *testing.T) {
	path := writeConfig(t, `
platform:
  preset: mtl
  video_pipes: 3
overrides:
  disable_real_tile: true
`)
	cfg, err := NewLoader(path, zerolog.Nop()).Load()
	require.NoError(t, err)

	assert.Equal(t, "mtl", cfg.Platform.Preset)
	assert.Equal(t, "xe_lpm_plus", cfg.Platform.Generation)
	assert.Equal(t, 3, cfg.Platform.VideoPipes)
	assert.True(t, cfg.Overrides.DisableRealTile)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := writeConfig(t, `
platform:
  video_pipes: 3
status:
  poll_interval: 5ms
`)
	t.Setenv("MEDIAHAL_VIDEO_PIPES", "4")
	t.Setenv("MEDIAHAL_PLATFORM_PRESET", "dg2")
	t.Setenv("MEDIAHAL_STATUS_POLL_INTERVAL", "2ms")
	t.Setenv("MEDIAHAL_FORCE_MULTI_PIPE", "true")

	l := NewLoader(path, zerolog.Nop())
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "dg2", cfg.Platform.Preset)
	assert.Equal(t, "xe_hpm", cfg.Platform.Generation)
	assert.Equal(t, 4, cfg.Platform.VideoPipes)
	assert.Equal(t, 2*time.Millisecond, cfg.Status.PollInterval)
	assert.True(t, cfg.Overrides.ForceMultiPipe)
	assert.Contains(t, l.ConsumedEnvKeys, "MEDIAHAL_VIDEO_PIPES")
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MEDIAHAL_VIDEO_PIPES", "many")
	cfg, err := NewLoader("", zerolog.Nop()).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Platform.VideoPipes)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, `
platform:
  vdboxes: 3
`)
	_, err := NewLoader(path, zerolog.Nop()).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField))
}

func TestLoad_UnknownPreset(t *testing.T) {
	path := writeConfig(t, "platform:\n  preset: pvc\n")
	_, err := NewLoader(path, zerolog.Nop()).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPreset))
}

func TestValidate(t *testing.T) {
	base, err := Defaults(DefaultPreset)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "zero pipes", mutate: func(c *Config) { c.Platform.VideoPipes = 0 }},
		{name: "inverted thresholds", mutate: func(c *Config) { c.Platform.LargeThresholdPixels = 1 }},
		{name: "zero watchdog", mutate: func(c *Config) { c.Platform.WatchdogThreshold = 0 }},
		{name: "zero status depth", mutate: func(c *Config) { c.Platform.StatusDepth = 0 }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "negative user pipes", mutate: func(c *Config) { c.Overrides.UserPipes = -1 }},
		{name: "telemetry without endpoint", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}},
		{name: "telemetry bad exporter", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "stdout"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestPresetNames(t *testing.T) {
	assert.Equal(t, []string{"dg2", "mtl", "tgl"}, PresetNames())
}
