// configgen writes the complete configuration of a platform preset as
// YAML, one file per preset or a single preset to stdout.
//
// Usage:
//
//	configgen -preset dg2
//	configgen -all -dir configs
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/mediahal/internal/config"
)

const header = "# Generated by configgen from the %s preset. Every key is optional;\n# omitted keys fall back to the preset.\n"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("configgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	preset := fs.String("preset", config.DefaultPreset, "preset to render")
	all := fs.Bool("all", false, "render every preset into -dir")
	dir := fs.String("dir", "configs", "output directory for -all")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !*all {
		out, err := render(*preset)
		if err != nil {
			fmt.Fprintf(stderr, "configgen: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(out)
		return 0
	}

	if err := os.MkdirAll(*dir, 0750); err != nil {
		fmt.Fprintf(stderr, "configgen: %v\n", err)
		return 1
	}
	for _, name := range config.PresetNames() {
		out, err := render(name)
		if err != nil {
			fmt.Fprintf(stderr, "configgen: %v\n", err)
			return 1
		}
		path := filepath.Join(*dir, fmt.Sprintf("mediahal.%s.yaml", name))
		if err := os.WriteFile(path, out, 0600); err != nil {
			fmt.Fprintf(stderr, "configgen: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
	}
	return 0
}

// render marshals the defaults of preset behind a short header.
func render(preset string) ([]byte, error) {
	cfg, err := config.Defaults(preset)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, header, preset)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", preset, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
