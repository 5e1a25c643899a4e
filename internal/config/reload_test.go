// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHolder_ReloadAppliesOverridesOnly(t *testing.T) {
	path := writeConfig(t, "platform:\n  video_pipes: 2\n")
	loader := NewLoader(path, zerolog.Nop())
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, zerolog.Nop())
	updates := make(chan Config, 1)
	h.RegisterListener(updates)

	require.NoError(t, os.WriteFile(path, []byte(`
platform:
  video_pipes: 4
overrides:
  disable_scalability: true
  user_pipes: 2
`), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	got := h.Get()
	assert.Equal(t, 2, got.Platform.VideoPipes, "platform is fixed for the instance")
	assert.True(t, got.Overrides.DisableScalability)
	assert.Equal(t, 2, h.Overrides().UserPipes)

	select {
	case cfg := <-updates:
		assert.True(t, cfg.Overrides.DisableScalability)
	default:
		t.Fatal("listener not notified")
	}
}

func TestHolder_ReloadKeepsOldOnError(t *testing.T) {
	path := writeConfig(t, "overrides:\n  force_multi_pipe: true\n")
	loader := NewLoader(path, zerolog.Nop())
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader, zerolog.Nop())

	require.NoError(t, os.WriteFile(path, []byte("overrides:\n  bogus: 1\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.True(t, h.Overrides().ForceMultiPipe)
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeConfig(t, "overrides:\n  user_pipes: 1\n")
	loader := NewLoader(path, zerolog.Nop())
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, zerolog.Nop())
	h.Debounce = 10 * time.Millisecond
	updates := make(chan Config, 4)
	h.RegisterListener(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("overrides:\n  user_pipes: 3\n"), 0o600))

	select {
	case cfg := <-updates:
		assert.Equal(t, 3, cfg.Overrides.UserPipes)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
}

func TestHolder_NoPathWatcherIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	initial, err := Defaults(DefaultPreset)
	require.NoError(t, err)
	h := NewHolder(initial, NewLoader("", zerolog.Nop()), zerolog.Nop())
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
