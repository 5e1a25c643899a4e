package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment key the loader reads.
const EnvPrefix = "MEDIAHAL_"

// parseString reads an environment variable or returns the default. It
// logs the source (environment or default) for observability.
func parseString(logger zerolog.Logger, key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
		return v
	}
	return defaultValue
}

// parseInt falls back to the default on parse errors.
func parseInt(logger zerolog.Logger, key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).Err(err).Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	return i
}

func parseUint32(logger zerolog.Logger, key string, defaultValue uint32) uint32 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Uint32("default", defaultValue).Err(err).Msg("invalid unsigned integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Uint64("value", u).Str("source", "environment").Msg("using environment variable")
	return uint32(u)
}

func parseBool(logger zerolog.Logger, key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Bool("default", defaultValue).Err(err).Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Bool("value", b).Str("source", "environment").Msg("using environment variable")
	return b
}

func parseFloat(logger zerolog.Logger, key string, defaultValue float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Float64("default", defaultValue).Err(err).Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Float64("value", f).Str("source", "environment").Msg("using environment variable")
	return f
}

func parseDuration(logger zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).Err(err).Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	return d
}
