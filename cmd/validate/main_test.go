package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediahal/internal/testutil"
	"github.com/ManuGH/mediahal/internal/version"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mediahal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCLI(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "example config",
			args:       []string{"-f", testutil.ExampleConfig(t)},
			wantExit:   0,
			wantStdout: "preset dg2 (xe_hpm)",
		},
		{
			name:       "minimal config",
			args:       []string{"--file", writeFile(t, "platform:\n  preset: mtl\n")},
			wantExit:   0,
			wantStdout: "is valid",
		},
		{
			name:       "unknown key",
			args:       []string{"-f", writeFile(t, "platform:\n  vdboxes: 4\n")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "type mismatch",
			args:       []string{"-f", writeFile(t, "platform:\n  video_pipes: many\n")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "validation failure",
			args:       []string{"-f", writeFile(t, "platform:\n  status_depth: 0\n")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "no file flag provided",
			wantExit:   2,
			wantStderr: "--file is required",
		},
		{
			name:       "non-existent file",
			args:       []string{"-f", "does-not-exist.yaml"},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)

			assert.Equal(t, tt.wantExit, code, "stdout:\n%s\nstderr:\n%s", stdout.String(), stderr.String())
			if tt.wantStdout != "" {
				assert.Contains(t, stdout.String(), tt.wantStdout)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestValidateCLI_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-version"}, &stdout, &stderr))
	assert.Equal(t, version.Version+"\n", stdout.String())
}
