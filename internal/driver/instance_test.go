package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/mos/sim"
	"github.com/ManuGH/mediahal/internal/scalability"
	"github.com/ManuGH/mediahal/internal/statusreport"
	"github.com/ManuGH/mediahal/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newInstance(t *testing.T, holder *config.Holder) (*Instance, *sim.Device) {
	t.Helper()
	if holder == nil {
		cfg, err := config.Defaults("dg2")
		require.NoError(t, err)
		cfg.Platform.StatusDepth = 8
		cfg.Status.PollInterval = time.Millisecond
		holder = config.NewHolder(cfg, nil, zerolog.Nop())
	}
	cfg := holder.Get()
	dev := testutil.Device(cfg.Platform.Generation, cfg.Platform.VideoPipes)
	inst, err := New(context.Background(), Options{Config: holder, Device: dev, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return inst, dev
}

func TestInstance_RunDecodesAndCloses(t *testing.T) {
	inst, dev := newInstance(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inst.Run(ctx) }()

	p, err := inst.CreatePipeline(ctx, codec.HEVC, codec.Decode)
	require.NoError(t, err)
	assert.Equal(t, 1, inst.Pipelines())

	req := testutil.Frame(t, dev, testutil.FrameSpec{Frame: 1, Width: 3840, Height: 2160, TileColumns: 2})
	h, err := p.Submit(ctx, req)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.InFlight() == 0 }, 5*time.Second, time.Millisecond,
		"the background poller retires the frame")
	st, err := p.Consume(h)
	require.NoError(t, err)
	assert.Equal(t, statusreport.StateCompleted, st.State, "err: %v", st.Err)

	cancel()
	require.NoError(t, <-done)

	live, total := inst.Allocations()
	assert.Positive(t, live)
	assert.Positive(t, total)

	require.NoError(t, inst.Close(context.Background()))
	live, _ = inst.Allocations()
	assert.Zero(t, live)
	assert.Zero(t, inst.Pipelines())
	require.NoError(t, inst.Close(context.Background()))

	_, err = inst.CreatePipeline(context.Background(), codec.HEVC, codec.Decode)
	assert.Equal(t, errs.CodeInvalidParameter, errs.CodeOf(err))
}

func TestInstance_CloseReportsLeaks(t *testing.T) {
	inst, dev := newInstance(t, nil)
	live := dev.LiveAllocations()

	h, err := inst.dev.Allocate(mos.AllocParams{Name: "forgotten", Size: 64, Kind: mos.KindBuffer})
	require.NoError(t, err)
	assert.Equal(t, live+1, dev.LiveAllocations())

	err = inst.Close(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLeakedAllocations))
	assert.Contains(t, err.Error(), "forgotten")

	require.NoError(t, dev.Free(h))
}

func TestInstance_PipelineRegistry(t *testing.T) {
	inst, _ := newInstance(t, nil)
	t.Cleanup(func() { require.NoError(t, inst.Close(context.Background())) })
	ctx := context.Background()

	_, err := inst.CreatePipeline(ctx, codec.AVC, codec.Decode)
	assert.Equal(t, errs.CodeUnimplemented, errs.CodeOf(err))

	a, err := inst.CreatePipeline(ctx, codec.HEVC, codec.Decode)
	require.NoError(t, err)
	b, err := inst.CreatePipeline(ctx, codec.VP9, codec.Decode)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, inst.Pipelines())

	require.NoError(t, inst.DestroyPipeline(ctx, a.ID()))
	assert.Equal(t, 1, inst.Pipelines())
	err = inst.DestroyPipeline(ctx, a.ID())
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
	err = inst.DestroyPipeline(ctx, uuid.New())
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestInstance_OverridesApplyPerFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediahal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platform:\n  preset: dg2\n  status_depth: 8\nstatus:\n  poll_interval: 1ms\n"), 0o600))
	loader := config.NewLoader(path, zerolog.Nop())
	cfg, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(cfg, loader, zerolog.Nop())

	inst, dev := newInstance(t, holder)
	t.Cleanup(func() { require.NoError(t, inst.Close(context.Background())) })
	ctx := context.Background()

	p, err := inst.CreatePipeline(ctx, codec.HEVC, codec.Decode)
	require.NoError(t, err)

	decode := func(frame uint64) scalability.Decision {
		req := testutil.Frame(t, dev, testutil.FrameSpec{Frame: frame, Width: 7680, Height: 4320})
		h, err := p.Submit(ctx, req)
		require.NoError(t, err)
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		st, err := p.Wait(wctx, h)
		require.NoError(t, err)
		require.Equal(t, statusreport.StateCompleted, st.State, "err: %v", st.Err)
		_, err = p.Consume(h)
		require.NoError(t, err)
		d, ok := p.Option()
		require.True(t, ok)
		return d
	}

	assert.Equal(t, scalability.ModeVirtualTile, decode(1).Option.Mode)

	require.NoError(t, os.WriteFile(path, []byte("platform:\n  preset: dg2\n  status_depth: 8\nstatus:\n  poll_interval: 1ms\noverrides:\n  disable_scalability: true\n"), 0o600))
	require.NoError(t, holder.Reload(ctx))

	d := decode(2)
	assert.Equal(t, scalability.ModeSingle, d.Option.Mode)
	assert.Equal(t, scalability.ReasonUserDisabled, d.Reason)
}

func TestNew_RequiresDeviceAndConfig(t *testing.T) {
	_, err := New(context.Background(), Options{Logger: zerolog.Nop()})
	assert.Equal(t, errs.CodeInvalidParameter, errs.CodeOf(err))
}
