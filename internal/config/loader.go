// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	logger          zerolog.Logger
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means
// ENV-only configuration.
func NewLoader(configPath string, logger zerolog.Logger) *Loader {
	return &Loader{
		configPath:      configPath,
		logger:          logger.With().Str("component", "config").Logger(),
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the watched file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) env(key string) string {
	full := EnvPrefix + key
	l.ConsumedEnvKeys[full] = struct{}{}
	return full
}

// Load loads configuration with precedence: ENV > File > Preset defaults.
// Order: pick preset -> defaults -> strict file decode -> env -> Validate.
func (l *Loader) Load() (Config, error) {
	var raw []byte
	if l.configPath != "" {
		b, err := os.ReadFile(l.configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		raw = b
	}

	preset, err := l.selectPreset(raw)
	if err != nil {
		return Config{}, err
	}

	cfg, err := Defaults(preset)
	if err != nil {
		return Config{}, err
	}

	if len(raw) > 0 {
		if err := decodeStrict(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}
	cfg.Platform.Preset = preset

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// selectPreset resolves the preset name before defaults are laid down so
// per-key file and env values override the preset rather than the reverse.
func (l *Loader) selectPreset(raw []byte) (string, error) {
	name := DefaultPreset
	if len(raw) > 0 {
		var peek struct {
			Platform struct {
				Preset string `yaml:"preset"`
			} `yaml:"platform"`
		}
		if err := yaml.Unmarshal(raw, &peek); err != nil {
			return "", fmt.Errorf("parse config file: %w", err)
		}
		if peek.Platform.Preset != "" {
			name = peek.Platform.Preset
		}
	}
	name = parseString(l.logger, l.env("PLATFORM_PRESET"), name)
	if _, err := Preset(name); err != nil {
		return "", err
	}
	return name, nil
}

func decodeStrict(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return err
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	lg := l.logger

	cfg.Log.Level = parseString(lg, l.env("LOG_LEVEL"), cfg.Log.Level)
	cfg.Log.Service = parseString(lg, l.env("LOG_SERVICE"), cfg.Log.Service)

	cfg.Telemetry.Enabled = parseBool(lg, l.env("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = parseString(lg, l.env("TELEMETRY_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = parseString(lg, l.env("TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = parseString(lg, l.env("TELEMETRY_ENVIRONMENT"), cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = parseFloat(lg, l.env("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)

	p := &cfg.Platform
	p.Generation = parseString(lg, l.env("PLATFORM_GENERATION"), p.Generation)
	p.VideoPipes = parseInt(lg, l.env("VIDEO_PIPES"), p.VideoPipes)
	p.MaxRealTileColumns = parseInt(lg, l.env("MAX_REAL_TILE_COLUMNS"), p.MaxRealTileColumns)
	p.MaxRealTileRows = parseInt(lg, l.env("MAX_REAL_TILE_ROWS"), p.MaxRealTileRows)
	p.TypicalThresholdPixels = parseInt(lg, l.env("TYPICAL_THRESHOLD_PIXELS"), p.TypicalThresholdPixels)
	p.LargeThresholdPixels = parseInt(lg, l.env("LARGE_THRESHOLD_PIXELS"), p.LargeThresholdPixels)
	p.TypicalPipes = parseInt(lg, l.env("TYPICAL_PIPES"), p.TypicalPipes)
	p.MaxVirtualTilePipes = parseInt(lg, l.env("MAX_VIRTUAL_TILE_PIPES"), p.MaxVirtualTilePipes)
	p.FESeparateMinPipes = parseInt(lg, l.env("FE_SEPARATE_MIN_PIPES"), p.FESeparateMinPipes)
	p.MinCTBColumnsPerPipe = parseInt(lg, l.env("MIN_CTB_COLUMNS_PER_PIPE"), p.MinCTBColumnsPerPipe)
	p.WatchdogThreshold = parseUint32(lg, l.env("WATCHDOG_THRESHOLD"), p.WatchdogThreshold)
	p.StatusDepth = parseInt(lg, l.env("STATUS_DEPTH"), p.StatusDepth)
	p.SyncTokens = parseInt(lg, l.env("SYNC_TOKENS"), p.SyncTokens)
	p.AuthRingDepth = parseInt(lg, l.env("AUTH_RING_DEPTH"), p.AuthRingDepth)

	o := &cfg.Overrides
	o.DisableScalability = parseBool(lg, l.env("DISABLE_SCALABILITY"), o.DisableScalability)
	o.ForceMultiPipe = parseBool(lg, l.env("FORCE_MULTI_PIPE"), o.ForceMultiPipe)
	o.UserPipes = parseInt(lg, l.env("USER_PIPES"), o.UserPipes)
	o.DisableRealTile = parseBool(lg, l.env("DISABLE_REAL_TILE"), o.DisableRealTile)
	o.RealTileMultiPhase = parseBool(lg, l.env("REAL_TILE_MULTI_PHASE"), o.RealTileMultiPhase)

	cfg.Status.PollInterval = parseDuration(lg, l.env("STATUS_POLL_INTERVAL"), cfg.Status.PollInterval)
}
