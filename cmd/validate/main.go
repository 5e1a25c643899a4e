// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// validate is a CLI tool to validate mediahal YAML configuration files.
//
// Usage:
//
//	validate -f mediahal.yaml
//	validate --file mediahal.yaml
//
// Exit codes:
//   - 0: Configuration is valid
//   - 1: Configuration is invalid (parse or validation error)
//   - 2: Usage error (missing required flag)
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	var showVersion bool
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	if file == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  validate -f mediahal.yaml")
		fmt.Fprintln(stderr, "  validate --file mediahal.yaml")
		return 2
	}

	// Load runs the strict decode and Validate.
	cfg, err := config.NewLoader(file, zerolog.Nop()).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n", file)
		fmt.Fprintf(stderr, "  %v\n", err)
		return 1
	}

	p := cfg.Platform
	fmt.Fprintf(stdout, "✓ %s is valid\n", file)
	fmt.Fprintf(stdout, "  preset %s (%s), %d video pipes, status depth %d\n", p.Preset, p.Generation, p.VideoPipes, p.StatusDepth)
	return 0
}
