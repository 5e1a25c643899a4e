// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package main implements mediahal-soak. It drives synthetic frames
// through a driver instance on the simulated device and checks the
// decode, synchronization and status invariants along the way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/version"
)

// Report is the JSON output schema for soak results.
type Report struct {
	RunID           string           `json:"run_id"`
	Seed            uint64           `json:"seed"`
	Preset          string           `json:"preset"`
	StartedAt       time.Time        `json:"started_at"`
	EndedAt         time.Time        `json:"ended_at"`
	DurationSeconds float64          `json:"duration_s"`
	ScenarioResults []ScenarioResult `json:"scenario_results"`
	Summary         Summary          `json:"summary"`
}

// ScenarioResult holds the outcome of a single scenario.
type ScenarioResult struct {
	Name         string           `json:"name"`
	Pass         bool             `json:"pass"`
	Status       string           `json:"status,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Observations map[string]int64 `json:"observations"`
	Failures     []Failure        `json:"failures"`
}

// Failure captures a specific invariant violation.
type Failure struct {
	Time    time.Time `json:"time"`
	RuleID  string    `json:"rule_id"`
	Frame   uint64    `json:"frame,omitempty"`
	Message string    `json:"message"`
}

// Summary provides the aggregate verdict.
type Summary struct {
	PassedScenarios  int    `json:"passed_scenarios"`
	FailedScenarios  int    `json:"failed_scenarios"`
	SkippedScenarios int    `json:"skipped_scenarios"`
	Verdict          string `json:"verdict"`
}

// Config holds command-line configuration.
type Config struct {
	ConfigPath  string
	Preset      string
	Seed        uint64
	Profile     string
	Frames      int
	Depth       int
	ChaosRate   float64
	ArtifactDir string
	LogLevel    string
}

const (
	scenarioStatusPass    = "pass"
	scenarioStatusFail    = "fail"
	scenarioStatusSkipped = "skipped"
)

var profiles = map[string][]string{
	"smoke":        {"modes"},
	"full":         {"modes", "auth_retry", "backpressure", "chaos"},
	"modes":        {"modes"},
	"auth":         {"auth_retry"},
	"backpressure": {"backpressure"},
	"chaos":        {"chaos"},
}

func main() {
	cfg := parseFlags()
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "mediahal-soak"})

	report, err := run(context.Background(), cfg, os.Stdout, log.WithComponent("soak"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "soak: %v\n", err)
		os.Exit(2)
	}
	if cfg.ArtifactDir != "" {
		if err := writeReport(cfg.ArtifactDir, report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if report.Summary.Verdict != "PASS" {
		os.Exit(1)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "mediahal YAML configuration (optional)")
	flag.StringVar(&cfg.Preset, "preset", "", "platform preset when no config file is given")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Random seed (0=random)")
	flag.StringVar(&cfg.Profile, "profile", "smoke", "Profile: smoke|full|modes|auth|backpressure|chaos")
	flag.IntVar(&cfg.Frames, "frames", 64, "Frames per scenario")
	flag.IntVar(&cfg.Depth, "depth", 4, "Status ring depth for the backpressure scenario")
	flag.Float64Var(&cfg.ChaosRate, "chaos-rate", 0.1, "Fraction of frames with an injected fault")
	flag.StringVar(&cfg.ArtifactDir, "artifact-dir", "./soak-artifacts", "Output directory (empty disables the report file)")
	flag.StringVar(&cfg.LogLevel, "log-level", "warn", "Driver log level")

	flag.Parse()
	return cfg
}

// run executes the scenarios of cfg.Profile and returns the report.
func run(ctx context.Context, cfg Config, out io.Writer, logger zerolog.Logger) (Report, error) {
	names, ok := profiles[cfg.Profile]
	if !ok {
		return Report{}, fmt.Errorf("unknown profile %q", cfg.Profile)
	}
	if cfg.Frames < 1 {
		return Report{}, fmt.Errorf("frames must be >= 1, got %d", cfg.Frames)
	}
	base, err := loadConfig(cfg)
	if err != nil {
		return Report{}, err
	}
	if cfg.Seed == 0 {
		// #nosec G115 -- UnixNano is positive until 2262
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	fmt.Fprintf(out, "mediahal-soak %s\n", version.Version)
	fmt.Fprintf(out, "Seed: %d\n", cfg.Seed)
	fmt.Fprintf(out, "Profile: %s\n", cfg.Profile)
	fmt.Fprintf(out, "Platform: %s (%s), %d video pipes\n", base.Platform.Preset, base.Platform.Generation, base.Platform.VideoPipes)

	report := Report{
		RunID:     fmt.Sprintf("soak-%d", cfg.Seed),
		Seed:      cfg.Seed,
		Preset:    base.Platform.Preset,
		StartedAt: time.Now(),
	}

	env := &env{
		cfg:     cfg,
		base:    base,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
		out:     out,
		logger:  logger,
		metrics: NewGatherer(prometheus.DefaultGatherer),
	}
	for _, name := range names {
		fmt.Fprintf(out, "Running %s...\n", name)
		sr := normalizeScenarioResult(scenarios[name](ctx, env))
		report.ScenarioResults = append(report.ScenarioResults, sr)
		switch sr.Status {
		case scenarioStatusPass:
			report.Summary.PassedScenarios++
		case scenarioStatusSkipped:
			report.Summary.SkippedScenarios++
		default:
			report.Summary.FailedScenarios++
		}
		fmt.Fprintf(out, "  %s: %s %s\n", sr.Name, sr.Status, sr.Reason)
	}

	report.EndedAt = time.Now()
	report.DurationSeconds = report.EndedAt.Sub(report.StartedAt).Seconds()
	if report.Summary.FailedScenarios == 0 {
		report.Summary.Verdict = "PASS"
	} else {
		report.Summary.Verdict = "FAIL"
	}

	fmt.Fprintf(out, "\nVerdict: %s (%d passed, %d failed, %d skipped)\n",
		report.Summary.Verdict,
		report.Summary.PassedScenarios,
		report.Summary.FailedScenarios,
		report.Summary.SkippedScenarios)
	return report, nil
}

func loadConfig(cfg Config) (config.Config, error) {
	if cfg.ConfigPath != "" {
		return config.NewLoader(cfg.ConfigPath, zerolog.Nop()).Load()
	}
	preset := cfg.Preset
	if preset == "" {
		preset = config.DefaultPreset
	}
	return config.Defaults(preset)
}

func writeReport(dir string, report Report) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "report.json"), data, 0600)
}

func normalizeScenarioResult(sr ScenarioResult) ScenarioResult {
	status := strings.ToLower(strings.TrimSpace(sr.Status))
	switch status {
	case scenarioStatusSkipped:
		sr.Pass = false
		if strings.TrimSpace(sr.Reason) == "" {
			sr.Reason = "skipped"
		}
	case scenarioStatusPass, scenarioStatusFail:
		sr.Pass = status == scenarioStatusPass
	default:
		if sr.Pass {
			status = scenarioStatusPass
		} else {
			status = scenarioStatusFail
		}
	}
	if status != scenarioStatusSkipped && len(sr.Failures) > 0 {
		sr.Pass = false
		status = scenarioStatusFail
	}
	sr.Status = status
	return sr
}
