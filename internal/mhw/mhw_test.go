package mhw

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mos"
)

func TestHeader_PackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range []Client{ClientMI, ClientVideo, 7} {
		for _, op := range []Opcode{0, 1, OpBatchBufferStart, OpPipeModeSelect, MaxOpcode} {
			for _, n := range []int{LengthBias, 3, 17, 0x1000, MaxDwords} {
				h := Header{Client: c, Opcode: op, Dwords: n}
				dw, err := PackHeader(h)
				require.NoError(t, err)
				assert.Equal(t, h, UnpackHeader(dw))
			}
		}
	}
}

func TestHeader_FieldPlacement(t *testing.T) {
	t.Parallel()

	dw, err := PackHeader(Header{Client: ClientVideo, Opcode: 0x1ABC, Dwords: 5})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), dw>>29)
	assert.Equal(t, uint32(0x1ABC), dw>>16&0x1FFF)
	assert.Equal(t, uint32(3), dw&0xFFFF, "length is stored minus two")
}

func TestHeader_Rejects(t *testing.T) {
	t.Parallel()

	bad := []Header{
		{Client: 8, Opcode: 1, Dwords: 2},
		{Client: ClientMI, Opcode: MaxOpcode + 1, Dwords: 2},
		{Client: ClientMI, Opcode: 1, Dwords: 1},
		{Client: ClientMI, Opcode: 1, Dwords: MaxDwords + 1},
	}
	for _, h := range bad {
		_, err := PackHeader(h)
		assert.Error(t, err, "%+v", h)
	}
}

func sampleCommands() []Command {
	buf := Address{Resource: 7, Offset: 64}
	return []Command{
		Noop{},
		BatchBufferStart{Target: buf, SecondLevel: true},
		BatchBufferStart{Target: buf},
		BatchBufferEnd{},
		ConditionalBatchBufferEnd{Addr: buf, Mask: HucAuthenticatedMask, Compare: HucNotAuthenticated},
		StoreDataImm{Addr: buf.Add(4), Value: 0xC0FFEE},
		StoreRegisterMem{Register: RegHucStatus2, Addr: buf},
		LoadRegisterImm{Register: RegWatchdogThreshold, Value: 256},
		FlushDw{PostSync: true, Addr: buf, Value: 9},
		SemaphoreSignal{Addr: buf, Value: 3},
		SemaphoreWait{Addr: buf, Value: 3, Op: CompareGreaterOrEqual},
		PipeModeSelect{Codec: 1, Mode: PipeModeBackEnd, Pipe: 2, NumPipes: 3},
		SurfaceState{ID: SurfaceRef, Surface: buf, Width: 1920, Height: 1080},
		PictureState{WidthInCTBs: 30, HeightInCTBs: 17, CTBLog2: 6, BitDepth: 10, TileColumns: 2, TileRows: 1, Padding: 2},
		TileCoding{Column: 1, FirstCol: 15, LastCol: 29, LastRow: 16, LastInPipe: true},
		SliceState{FirstCTB: 12, Type: 2, Last: true},
		BsdObject{Bitstream: buf, Size: 4096},
		PipelineFlush{HevcDone: true},
		HucImemState{Kernel: buf, KernelID: 3},
		HucDmemState{Data: buf, Size: 256},
		HucStart{LastStream: true},
		SfcState{Input: buf, Output: Address{Resource: 8}, InputWidth: 1920, InputHeight: 1080, OutputWidth: 960, OutputHeight: 540},
		SfcFrameStart{},
	}
}

func TestCommands_EncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, cmd := range sampleCommands() {
		dws, err := Encode(cmd)
		require.NoError(t, err, "%T", cmd)
		assert.Len(t, dws, cmd.Dwords(), "%T", cmd)

		got, n, err := Decode(dws)
		require.NoError(t, err, "%T", cmd)
		assert.Equal(t, cmd.Dwords(), n)
		if diff := cmp.Diff(cmd, got); diff != "" {
			t.Errorf("%T round trip mismatch (-want +got):\n%s", cmd, diff)
		}
	}
}

func TestDecodeAll(t *testing.T) {
	t.Parallel()

	cmds := sampleCommands()
	cb := mos.NewCommandBuffer("roundtrip", SizeOf(cmds...))
	require.NoError(t, NewEmitter().Emit(cb, cmds...))
	assert.Equal(t, SizeOf(cmds...), cb.Bytes())
	assert.False(t, cb.Overrun())

	got, err := DecodeAll(cb.Dwords())
	require.NoError(t, err)
	if diff := cmp.Diff(cmds, got); diff != "" {
		t.Errorf("stream mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Decode(nil)
	assert.Error(t, err)

	unknown, err := PackHeader(Header{Client: ClientVideo, Opcode: 0x1FFF, Dwords: 2})
	require.NoError(t, err)
	_, _, err = Decode([]uint32{unknown, 0})
	assert.Error(t, err)

	truncated, err := Encode(StoreDataImm{Addr: Address{Resource: 1}})
	require.NoError(t, err)
	_, _, err = Decode(truncated[:2])
	assert.Error(t, err)

	// a header that lies about its length must not parse
	short, err := PackHeader(Header{Client: ClientMI, Opcode: OpStoreDataImm, Dwords: 3})
	require.NoError(t, err)
	_, _, err = Decode([]uint32{short, 1, 2})
	assert.Error(t, err)
}

func TestEmitter_Relocations(t *testing.T) {
	t.Parallel()

	cb := mos.NewCommandBuffer("relocs", 64)
	require.NoError(t, NewEmitter().Emit(cb,
		Noop{},
		StoreDataImm{Addr: Address{Resource: 5, Offset: 8}, Value: 1},
		BatchBufferEnd{},
	))

	relocs := cb.Relocs()
	require.Len(t, relocs, 1)
	assert.Equal(t, mos.Reloc{Dword: 3, Resource: 5, Offset: 8, Write: true}, relocs[0])
	assert.Equal(t, uint32(5), cb.Dwords()[3])
}

func TestEmitter_SealedBuffer(t *testing.T) {
	t.Parallel()

	cb := mos.NewCommandBuffer("sealed", 16)
	cb.Seal()
	err := NewEmitter().Emit(cb, Noop{})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestConditionalBatchBufferEnd_Ends(t *testing.T) {
	t.Parallel()

	c := ConditionalBatchBufferEnd{Mask: HucAuthenticatedMask, Compare: HucNotAuthenticated}
	assert.False(t, c.Ends(0), "not authenticated keeps looping")
	assert.True(t, c.Ends(HucAuthenticatedMask))
	assert.False(t, c.Ends(^HucAuthenticatedMask), "unrelated bits are masked")

	c.EndIfEqual = true
	assert.True(t, c.Ends(0))
}

func TestSemaphoreWait_Satisfied(t *testing.T) {
	t.Parallel()

	ge := SemaphoreWait{Value: 4, Op: CompareGreaterOrEqual}
	assert.False(t, ge.Satisfied(3))
	assert.True(t, ge.Satisfied(4))
	assert.True(t, ge.Satisfied(9))

	eq := SemaphoreWait{Value: 4, Op: CompareEqual}
	assert.False(t, eq.Satisfied(5))
}

func TestTraitsFor(t *testing.T) {
	t.Parallel()

	for _, g := range Generations() {
		tr, err := TraitsFor(g)
		require.NoError(t, err)
		assert.Equal(t, g, tr.Generation)
		assert.Positive(t, tr.MaxVirtualTilePipes)
	}

	_, err := TraitsFor("gen9")
	assert.ErrorIs(t, err, errs.ErrUnimplemented)
}

func TestPictureState_PaddingChangesSize(t *testing.T) {
	t.Parallel()

	gen12, err := TraitsFor("gen12")
	require.NoError(t, err)
	mtl, err := TraitsFor("xe_lpm_plus")
	require.NoError(t, err)

	a := PictureState{Padding: gen12.PicStatePadding}
	b := PictureState{Padding: mtl.PicStatePadding}
	assert.Equal(t, (b.Padding-a.Padding)*4, SizeOf(b)-SizeOf(a))
}
