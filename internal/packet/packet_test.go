package packet

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/fence"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/mos/sim"
	"github.com/ManuGH/mediahal/internal/scalability"
)

type fakePacket struct {
	calls      []string
	prepareErr error
}

func (f *fakePacket) Init(context.Context) error {
	f.calls = append(f.calls, "init")
	return nil
}

func (f *fakePacket) Prepare() error {
	f.calls = append(f.calls, "prepare")
	return f.prepareErr
}

func (f *fakePacket) CalculateCommandSize() int { return 8 }

func (f *fakePacket) Execute(*mos.CommandBuffer, Target) error {
	f.calls = append(f.calls, "execute")
	return nil
}

func (f *fakePacket) Destroy() error {
	f.calls = append(f.calls, "destroy")
	return nil
}

func TestLifecycle_EnforcesOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cb := mos.NewCommandBuffer("test", 64)

	f := &fakePacket{}
	lc, err := NewLifecycle(IDPicture, f, zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, lc.Execute(ctx, cb, Target{}), errs.ErrInvalidParameter)
	assert.ErrorIs(t, lc.Prepare(ctx), errs.ErrInvalidParameter, "prepare before init")
	require.NoError(t, lc.Init(ctx))
	assert.ErrorIs(t, lc.Init(ctx), errs.ErrInvalidParameter, "init runs once")

	_, err = lc.CalculateCommandSize()
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	assert.ErrorIs(t, lc.Execute(ctx, cb, Target{}), errs.ErrInvalidParameter, "execute before prepare")

	f.prepareErr = errs.New(errs.CodeNotFound, "feature", "missing")
	assert.ErrorIs(t, lc.Prepare(ctx), errs.ErrNotFound)
	assert.Equal(t, StateReady, lc.State())
	assert.ErrorIs(t, lc.Execute(ctx, cb, Target{}), errs.ErrInvalidParameter, "failed prepare is not executable")

	f.prepareErr = nil
	require.NoError(t, lc.Prepare(ctx))
	n, err := lc.CalculateCommandSize()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, lc.Execute(ctx, cb, Target{Pipe: 0}))
	require.NoError(t, lc.Execute(ctx, cb, Target{Pipe: 1}))
	assert.Equal(t, StateExecuting, lc.State())
	require.NoError(t, lc.Prepare(ctx), "next frame")

	require.NoError(t, lc.Destroy(ctx))
	require.NoError(t, lc.Destroy(ctx))
	assert.ErrorIs(t, lc.Prepare(ctx), errs.ErrInvalidParameter)
	assert.Equal(t, []string{"init", "prepare", "prepare", "execute", "execute", "prepare", "destroy"}, f.calls)

	_, err = NewLifecycle(IDTile, nil, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestManager_KeysByOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewManager(zerolog.Nop())
	a, b := uuid.New(), uuid.New()
	fa, fb := &fakePacket{}, &fakePacket{}

	_, err := m.Register(a, IDPicture, fa)
	require.NoError(t, err)
	_, err = m.Register(a, IDSlice, &fakePacket{})
	require.NoError(t, err)
	_, err = m.Register(b, IDPicture, fb)
	require.NoError(t, err, "owners never collide")

	_, err = m.Register(a, IDPicture, &fakePacket{})
	assert.ErrorIs(t, err, errs.ErrAlreadyRegistered)
	_, err = m.Register(uuid.Nil, IDPicture, &fakePacket{})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = m.Register(a, IDTile, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	lc, err := m.Get(b, IDPicture)
	require.NoError(t, err)
	assert.Same(t, fb, lc.Packet())
	_, err = m.Get(b, IDSlice)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, []ID{IDPicture, IDSlice}, m.Owned(a))

	require.NoError(t, m.Unregister(ctx, a))
	assert.Equal(t, []string{"destroy"}, fa.calls)
	assert.Equal(t, 1, m.Len())
	_, err = m.Get(a, IDPicture)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

// frame describes a 4K HEVC frame with a 4x2 tile grid and slices that
// start in different tile columns.
func frame() *codec.FrameRequest {
	return &codec.FrameRequest{
		Codec:         codec.HEVC,
		Frame:         1,
		Bitstream:     100,
		BitstreamSize: 1500,
		Dest:          101,
		Pic: codec.PicParams{
			Width: 3840, Height: 2160, CTBLog2: 6, BitDepth: 10,
			TilesEnabled: true, TileColumns: 4, TileRows: 2,
		},
		Slices: []codec.SliceParams{
			{Offset: 0, Size: 100, FirstCTB: 0},
			{Offset: 100, Size: 200, FirstCTB: 16},
			{Offset: 300, Size: 300, FirstCTB: 31},
			{Offset: 600, Size: 400, FirstCTB: 50},
			{Offset: 1000, Size: 500, FirstCTB: 5*60 + 20},
		},
		Refs: codec.RefList{Surfaces: []mos.Handle{102, 103}, Current: -1},
	}
}

type fixture struct {
	dev    *sim.Device
	deps   Deps
	sc     *feature.Scalability
	status *feature.Status
}

func newFixture(t *testing.T, gen string, req *codec.FrameRequest, opt scalability.Option) fixture {
	t.Helper()
	traits, err := mhw.TraitsFor(gen)
	require.NoError(t, err)

	fm := feature.NewManager()
	sc := feature.NewScalability()
	status := feature.NewStatus(4)
	status.Set(0)
	for _, r := range []struct {
		tag feature.Tag
		f   feature.Feature
	}{
		{feature.TagBasic, feature.NewBasic(req.Codec)},
		{feature.TagTile, feature.NewTile()},
		{feature.TagSlice, feature.NewSlice()},
		{feature.TagRefList, feature.NewRefList()},
		{feature.TagDownSampling, feature.NewDownSampling()},
		{feature.TagFirmware, feature.NewFirmware(traits)},
		{feature.TagScalability, sc},
		{feature.TagStatus, status},
	} {
		require.NoError(t, fm.Register(r.tag, r.f))
	}
	require.NoError(t, fm.UpdateAll(req))
	setOption(t, sc, req, opt)

	dev := sim.New(sim.Options{Generation: gen, VideoPipes: 4})
	return fixture{
		dev:    dev,
		sc:     sc,
		status: status,
		deps: Deps{
			Features:  fm,
			Emitter:   mhw.NewEmitter(),
			Traits:    traits,
			Resources: dev,
			Logger:    zerolog.Nop(),
		},
	}
}

func setOption(t *testing.T, sc *feature.Scalability, req *codec.FrameRequest, opt scalability.Option) {
	t.Helper()
	cols, err := scalability.Partition(opt, req.Pic.Width, req.Pic.CTBLog2)
	require.NoError(t, err)
	var plan scalability.RealTilePlan
	if opt.Mode == scalability.ModeRealTile {
		plan, err = scalability.PlanRealTile(opt, req.Pic.Columns())
		require.NoError(t, err)
	}
	sc.Set(scalability.Decision{Option: opt}, false, cols, plan)
}

func decodePackets(t *testing.T, d Deps) []Packet {
	t.Helper()
	pic, err := NewPicture(d)
	require.NoError(t, err)
	sl, err := NewSlice(d)
	require.NoError(t, err)
	tile, err := NewTile(d)
	require.NoError(t, err)
	out := []Packet{pic, sl, tile}
	for _, p := range out {
		require.NoError(t, p.Init(context.Background()))
		require.NoError(t, p.Prepare())
	}
	return out
}

func TestCommandSizeBoundsExecute(t *testing.T) {
	t.Parallel()

	single := scalability.Option{NumPipe: 1, Mode: scalability.ModeSingle}
	vt := scalability.Option{NumPipe: 2, Mode: scalability.ModeVirtualTile}
	rt := scalability.Option{NumPipe: 3, Mode: scalability.ModeRealTile}

	tests := []struct {
		name    string
		gen     string
		opt     scalability.Option
		targets []Target
	}{
		{"single gen12", "gen12", single, []Target{{Stage: StageLong}}},
		{"single padded", "xe_lpm_plus", single, []Target{{Stage: StageLong}}},
		{"virtual tile", "xe_hpm", vt, []Target{
			{Stage: StageFrontEnd}, {Stage: StageBackEnd, Pipe: 0}, {Stage: StageBackEnd, Pipe: 1},
		}},
		{"real tile", "gen12", rt, []Target{
			{Stage: StageRealTile, Pipe: 0}, {Stage: StageRealTile, Pipe: 1},
			{Stage: StageRealTile, Pipe: 2}, {Stage: StageRealTile, Pipe: 0, Pass: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.gen, frame(), tt.opt)
			for _, p := range decodePackets(t, fx.deps) {
				for _, tg := range tt.targets {
					if _, isSlice := p.(*Slice); isSlice && tg.Stage == StageBackEnd {
						continue
					}
					cb := mos.NewCommandBuffer("size", 0)
					require.NoError(t, p.Execute(cb, tg), "%T %+v", p, tg)
					assert.LessOrEqual(t, cb.Bytes(), p.CalculateCommandSize(), "%T %+v", p, tg)
				}
			}
		})
	}
}

func commands(t *testing.T, cb *mos.CommandBuffer) []mhw.Command {
	t.Helper()
	cmds, err := mhw.DecodeAll(cb.Dwords())
	require.NoError(t, err)
	return cmds
}

func TestSlice_RealTileDecodesEverySliceOnce(t *testing.T) {
	t.Parallel()

	opt := scalability.Option{NumPipe: 3, Mode: scalability.ModeRealTile}
	fx := newFixture(t, "gen12", frame(), opt)
	s, err := NewSlice(fx.deps)
	require.NoError(t, err)
	require.NoError(t, s.Prepare())

	plan := fx.sc.Plan()
	require.Equal(t, 2, plan.Passes)
	var total uint32
	var count int
	for pass := 0; pass < plan.Passes; pass++ {
		for pipe := 0; pipe < plan.PipesInPass(pass); pipe++ {
			cb := mos.NewCommandBuffer("rt", 0)
			require.NoError(t, s.Execute(cb, Target{Stage: StageRealTile, Pipe: pipe, Pass: pass}))
			for _, c := range commands(t, cb) {
				if bsd, ok := c.(mhw.BsdObject); ok {
					total += bsd.Size
					count++
				}
			}
		}
	}
	assert.Equal(t, uint32(1500), total)
	assert.Equal(t, 5, count)

	err = s.Execute(mos.NewCommandBuffer("idle", 0), Target{Stage: StageRealTile, Pipe: 1, Pass: 1})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	assert.ErrorIs(t, s.Execute(mos.NewCommandBuffer("be", 0), Target{Stage: StageBackEnd}), errs.ErrInvalidParameter)
}

func TestTile_BackEndCoversPartition(t *testing.T) {
	t.Parallel()

	opt := scalability.Option{NumPipe: 2, Mode: scalability.ModeVirtualTile}
	fx := newFixture(t, "gen12", frame(), opt)
	tile, err := NewTile(fx.deps)
	require.NoError(t, err)
	require.NoError(t, tile.Prepare())

	var got [][2]uint32
	for pipe := 0; pipe < 2; pipe++ {
		cb := mos.NewCommandBuffer("be", 0)
		require.NoError(t, tile.Execute(cb, Target{Stage: StageBackEnd, Pipe: pipe}))
		cmds := commands(t, cb)
		require.Len(t, cmds, 1)
		tc := cmds[0].(mhw.TileCoding)
		assert.Equal(t, uint32(33), tc.LastRow)
		got = append(got, [2]uint32{tc.FirstCol, tc.LastCol})
	}
	assert.Equal(t, [][2]uint32{{0, 29}, {30, 59}}, got)

	cb := mos.NewCommandBuffer("fe", 0)
	require.NoError(t, tile.Execute(cb, Target{Stage: StageFrontEnd}))
	assert.Zero(t, cb.Bytes())
	assert.ErrorIs(t, tile.Execute(cb, Target{Stage: StageBackEnd, Pipe: 2}), errs.ErrInvalidParameter)
	assert.ErrorIs(t, tile.Execute(cb, Target{Stage: StageFirmware}), errs.ErrInvalidParameter)
}

func TestPicture_ProgramsPipeAndGrowsRowStore(t *testing.T) {
	t.Parallel()

	req := frame()
	opt := scalability.Option{NumPipe: 2, Mode: scalability.ModeVirtualTile}
	fx := newFixture(t, "xe_hpm", req, opt)
	pic, err := NewPicture(fx.deps)
	require.NoError(t, err)
	require.NoError(t, pic.Init(context.Background()))
	initial := pic.rowStore

	require.NoError(t, pic.Prepare())
	assert.NotEqual(t, initial, pic.rowStore, "4K over two pipes outgrows the initial row store")

	cb := mos.NewCommandBuffer("be1", 0)
	require.NoError(t, pic.Execute(cb, Target{Stage: StageBackEnd, Pipe: 1}))
	cmds := commands(t, cb)
	pms := cmds[0].(mhw.PipeModeSelect)
	assert.Equal(t, mhw.PipeModeSelect{Codec: uint32(codec.HEVC), Mode: mhw.PipeModeBackEnd, Pipe: 1, NumPipes: 2}, pms)
	rs := cmds[2].(mhw.SurfaceState)
	assert.Equal(t, mhw.SurfaceRowStore, rs.ID)
	assert.Equal(t, uint32(60*rowStoreBytesPerCTB), rs.Surface.Offset)
	ps := cmds[len(cmds)-1].(mhw.PictureState)
	assert.Equal(t, 2, ps.Padding)
	assert.Equal(t, uint32(4), ps.TileColumns)

	assert.ErrorIs(t, pic.Execute(cb, Target{Stage: StageBackEnd, Pipe: 2}), errs.ErrInvalidParameter)
	assert.ErrorIs(t, pic.Execute(cb, Target{Stage: StagePostProcess}), errs.ErrInvalidParameter)

	req.Pic.Width, req.Pic.Height = 7680, 4320
	require.NoError(t, fx.deps.Features.UpdateAll(req))
	fx.dev.InjectAllocFailures(1)
	assert.ErrorIs(t, pic.Prepare(), errs.ErrNoSpace)
	require.NoError(t, pic.Prepare(), "a failed growth leaves the packet usable")

	require.NoError(t, pic.Destroy())
	assert.Zero(t, fx.dev.LiveAllocations())
}

func TestFirmware_AuthOpensPayload(t *testing.T) {
	t.Parallel()

	req := frame()
	req.Pic.ShortFormat = true
	fx := newFixture(t, "gen12", req, scalability.Option{NumPipe: 1, Mode: scalability.ModeSingle})
	fx.dev.SetAuthSequence(0, mhw.HucAuthenticatedMask)

	coord, err := fence.New(fence.Config{
		Device:            fx.dev,
		Emitter:           fx.deps.Emitter,
		Tokens:            2,
		AuthRingDepth:     2,
		WatchdogThreshold: 256,
		Logger:            zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })

	load, err := NewFirmwareLoad(fx.deps)
	require.NoError(t, err)
	auth, err := NewFirmwareAuth(fx.deps, coord)
	require.NoError(t, err)
	require.NoError(t, load.Init(context.Background()))
	require.NoError(t, load.Prepare())
	require.NoError(t, auth.Prepare())
	assert.True(t, auth.Checked())
	assert.Equal(t, fence.AuthCheckSize(), auth.CalculateCommandSize())

	cb := mos.NewCommandBuffer("fw", 0)
	fwTarget := Target{Stage: StageFirmware}
	require.NoError(t, auth.Execute(cb, fwTarget))
	assert.Equal(t, auth.CalculateCommandSize(), cb.Bytes(), "the check alone")
	require.NoError(t, load.Execute(cb, fwTarget))
	require.NoError(t, coord.StopWatchdog(cb))

	var kinds []string
	for _, c := range commands(t, cb) {
		kinds = append(kinds, fmt.Sprintf("%T", c))
	}
	assert.Equal(t, []string{
		"mhw.LoadRegisterImm", "mhw.LoadRegisterImm", "mhw.BatchBufferStart",
		"mhw.HucImemState", "mhw.HucDmemState", "mhw.HucStart",
		"mhw.LoadRegisterImm",
	}, kinds)

	mem, err := fx.dev.Lock(load.dmem[load.slot])
	require.NoError(t, err)
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(mem[dmemRecordBytes+4:]), "second slice size")
	require.NoError(t, fx.dev.Unlock(load.dmem[load.slot]))

	require.NoError(t, fx.deps.Emitter.Emit(cb, mhw.BatchBufferEnd{}))
	id, err := coord.SwitchEngine(mos.ContextParams{Engine: mos.EngineFirmware})
	require.NoError(t, err)
	f, err := fx.dev.Submit(id, cb)
	require.NoError(t, err)
	done, err := f.Status()
	require.True(t, done)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.dev.Stats().HucRuns)
	assert.Equal(t, 1, fx.dev.Stats().ChainedJumps)

	require.NoError(t, load.Destroy())
}

func TestFirmware_NoAuthOnNewerGeneration(t *testing.T) {
	t.Parallel()

	req := frame()
	req.Pic.ShortFormat = true
	fx := newFixture(t, "xe_lpm_plus", req, scalability.Option{NumPipe: 1, Mode: scalability.ModeSingle})
	load, err := NewFirmwareLoad(fx.deps)
	require.NoError(t, err)
	auth, err := NewFirmwareAuth(fx.deps, noAuth{})
	require.NoError(t, err)
	require.NoError(t, load.Init(context.Background()))
	require.NoError(t, load.Prepare())
	require.NoError(t, auth.Prepare())
	assert.False(t, auth.Checked())
	assert.Zero(t, auth.CalculateCommandSize())

	cb := mos.NewCommandBuffer("fw", 0)
	assert.ErrorIs(t, auth.Execute(cb, Target{Stage: StageFirmware}), errs.ErrInvalidParameter)
	require.NoError(t, load.Execute(cb, Target{Stage: StageFirmware}))
	assert.Len(t, commands(t, cb), 3)
	assert.Equal(t, load.CalculateCommandSize(), cb.Bytes())

	req.Pic.ShortFormat = false
	require.NoError(t, fx.deps.Features.UpdateAll(req))
	require.NoError(t, load.Prepare())
	assert.False(t, load.Needed())
	assert.ErrorIs(t, load.Execute(cb, Target{Stage: StageFirmware}), errs.ErrInvalidParameter)
	assert.ErrorIs(t, load.Execute(cb, Target{Stage: StageLong}), errs.ErrInvalidParameter)

	require.NoError(t, load.Destroy())
	assert.Zero(t, fx.dev.LiveAllocations())
}

// Slice records live in a buffer per status slot, so preparing the frame
// of another slot never touches records an earlier frame submitted.
func TestFirmware_SliceRecordsPerStatusSlot(t *testing.T) {
	t.Parallel()

	req := frame()
	req.Pic.ShortFormat = true
	fx := newFixture(t, "xe_lpm_plus", req, scalability.Option{NumPipe: 1, Mode: scalability.ModeSingle})
	load, err := NewFirmwareLoad(fx.deps)
	require.NoError(t, err)
	require.NoError(t, load.Init(context.Background()))
	assert.Equal(t, 1, fx.dev.LiveAllocations(), "slot buffers are allocated on first use")

	dmemOf := func(slot int, offset uint32) mos.Handle {
		t.Helper()
		fx.status.Set(slot)
		req.Slices[1].Offset = offset
		require.NoError(t, fx.deps.Features.UpdateAll(req))
		require.NoError(t, load.Prepare())
		cb := mos.NewCommandBuffer("fw", 0)
		require.NoError(t, load.Execute(cb, Target{Stage: StageFirmware}))
		return commands(t, cb)[1].(mhw.HucDmemState).Data.Resource
	}
	readOffset := func(h mos.Handle) uint32 {
		t.Helper()
		mem, err := fx.dev.Lock(h)
		require.NoError(t, err)
		defer func() { require.NoError(t, fx.dev.Unlock(h)) }()
		return binary.LittleEndian.Uint32(mem[dmemRecordBytes:])
	}

	seen := make(map[mos.Handle]int)
	for slot := 0; slot < 4; slot++ {
		h := dmemOf(slot, uint32(101+slot))
		_, dup := seen[h]
		require.False(t, dup, "slot %d shares a buffer", slot)
		seen[h] = slot
	}
	for h, slot := range seen {
		assert.Equal(t, uint32(101+slot), readOffset(h), "slot %d", slot)
	}

	again := dmemOf(0, 105)
	slot, ok := seen[again]
	require.True(t, ok, "a reused slot keeps its buffer")
	assert.Equal(t, 0, slot)
	assert.Equal(t, uint32(105), readOffset(again))

	fx.status.Set(4)
	require.NoError(t, fx.deps.Features.UpdateAll(req))
	assert.ErrorIs(t, load.Prepare(), errs.ErrInvalidParameter, "slot beyond the ring")

	require.NoError(t, load.Destroy())
	assert.Zero(t, fx.dev.LiveAllocations())
}

type noAuth struct{}

func (noAuth) AddAuthCheck(*mos.CommandBuffer) error { return errs.ErrUnimplemented }

func TestDownSampling(t *testing.T) {
	t.Parallel()

	req := frame()
	fx := newFixture(t, "gen12", req, scalability.Option{NumPipe: 1, Mode: scalability.ModeSingle})
	ds, err := NewDownSampling(fx.deps)
	require.NoError(t, err)
	require.NoError(t, ds.Prepare())
	assert.False(t, ds.Enabled())
	cb := mos.NewCommandBuffer("vp", 0)
	assert.ErrorIs(t, ds.Execute(cb, Target{Stage: StagePostProcess}), errs.ErrInvalidParameter)

	req.DownSample = &codec.DownSampleParams{Output: 200, Width: 1920, Height: 1080}
	require.NoError(t, fx.deps.Features.UpdateAll(req))
	require.NoError(t, ds.Prepare())
	require.NoError(t, ds.Execute(cb, Target{Stage: StagePostProcess}))
	assert.Equal(t, ds.CalculateCommandSize(), cb.Bytes())
	sfc := commands(t, cb)[0].(mhw.SfcState)
	assert.Equal(t, mos.Handle(101), sfc.Input.Resource)
	assert.Equal(t, mos.Handle(200), sfc.Output.Resource)
	assert.Equal(t, uint32(1920), sfc.OutputWidth)
	assert.ErrorIs(t, ds.Execute(cb, Target{Stage: StageLong}), errs.ErrInvalidParameter)
}

func TestNewPackets_RequireDeps(t *testing.T) {
	t.Parallel()

	_, err := NewPicture(Deps{})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = NewFirmwareAuth(Deps{Features: feature.NewManager(), Emitter: mhw.NewEmitter(), Resources: sim.New(sim.Options{})}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestPrepare_MissingFeature(t *testing.T) {
	t.Parallel()

	d := Deps{Features: feature.NewManager(), Emitter: mhw.NewEmitter(), Resources: sim.New(sim.Options{})}
	tile, err := NewTile(d)
	require.NoError(t, err)
	assert.ErrorIs(t, tile.Prepare(), errs.ErrNotFound)
}
