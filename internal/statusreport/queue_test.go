package statusreport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/mos/sim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualFence completes when the test says so.
type manualFence struct {
	done atomic.Bool
	err  error
}

func (f *manualFence) ID() string { return "manual" }
func (f *manualFence) Status() (bool, error) {
	if !f.done.Load() {
		return false, nil
	}
	return true, f.err
}

func newQueue(t *testing.T, rs mos.ResourceService, depth int) *Queue {
	t.Helper()
	q, err := New(Config{Resources: rs, Depth: depth, PollInterval: time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func doneFence() *manualFence {
	f := &manualFence{}
	f.done.Store(true)
	return f
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(Config{Depth: 4})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = New(Config{Resources: sim.New(sim.Options{}), Depth: 0})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = New(Config{Resources: sim.New(sim.Options{AllocBudget: 16}), Depth: 4})
	assert.ErrorIs(t, err, errs.ErrNoSpace)
}

func TestQueue_Lifecycle(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 4)

	f := &manualFence{}
	var retired int
	require.NoError(t, q.Enqueue(context.Background(), 1, []mos.Fence{f}))
	s, err := q.TryReserve(2)
	require.NoError(t, err)
	require.NoError(t, q.Commit(s, []mos.Fence{doneFence()}, func() { retired++ }))

	assert.Equal(t, 2, q.Pending())
	st, err := q.GetStatus(1)
	require.NoError(t, err)
	assert.Equal(t, StatePending, st.State)

	_, err = q.Consume(1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter, "pending entries cannot be consumed")

	assert.Equal(t, 1, q.Poll())
	assert.Equal(t, 1, retired)
	assert.Zero(t, q.Poll(), "retire callbacks run once")
	assert.Equal(t, 1, retired)

	f.done.Store(true)
	st, err = q.Wait(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)

	st, err = q.Consume(2)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, uint64(2), st.Frame)

	_, err = q.Consume(2)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = q.GetStatus(99)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, 1, q.InUse())
	assert.Equal(t, 4, q.Depth())
}

func TestQueue_DuplicateFrameRejected(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 4)

	_, err := q.TryReserve(5)
	require.NoError(t, err)
	_, err = q.TryReserve(5)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = q.Reserve(context.Background(), 5)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	assert.Equal(t, 1, q.InUse())
}

func TestQueue_CommitAndAbortMisuse(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 2)

	s, err := q.TryReserve(1)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Commit(s, nil), errs.ErrInvalidParameter)
	require.NoError(t, q.Abort(s, errs.New(errs.CodeNoSpace, "alloc", "out of memory")))
	assert.ErrorIs(t, q.Commit(s, []mos.Fence{doneFence()}), errs.ErrInvalidParameter)
	assert.ErrorIs(t, q.Abort(s, nil), errs.ErrInvalidParameter)

	st, err := q.GetStatus(1)
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, errs.CodeNoSpace, st.Code)

	other := newQueue(t, sim.New(sim.Options{}), 1)
	foreign, err := other.TryReserve(1)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Commit(foreign, []mos.Fence{doneFence()}), errs.ErrInvalidParameter)
}

func TestQueue_FenceErrorBecomesStatus(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 2)

	f := doneFence()
	f.err = errs.New(errs.CodeDeviceTimeout, "engine", "watchdog reset")
	require.NoError(t, q.Enqueue(context.Background(), 3, []mos.Fence{doneFence(), f}))

	st, err := q.Wait(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, errs.CodeDeviceTimeout, st.Code)
	assert.ErrorIs(t, st.Err, errs.ErrDeviceTimeout)
}

func TestQueue_BackpressureBlocksUntilConsume(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 1)

	require.NoError(t, q.Enqueue(context.Background(), 1, []mos.Fence{doneFence()}))
	_, err := q.TryReserve(2)
	assert.ErrorIs(t, err, errs.ErrNoSpace)

	got := make(chan error, 1)
	go func() {
		s, err := q.Reserve(context.Background(), 2)
		if err == nil {
			err = q.Commit(s, []mos.Fence{doneFence()})
		}
		got <- err
	}()

	select {
	case err := <-got:
		t.Fatalf("reserve returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	q.Poll()
	_, err = q.Consume(1)
	require.NoError(t, err)

	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reserve never unblocked")
	}
	assert.Equal(t, 1, q.InUse())
}

func TestQueue_ReserveHonorsContext(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 1)
	_, err := q.TryReserve(1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Reserve(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f := &manualFence{}
	q2 := newQueue(t, sim.New(sim.Options{}), 1)
	require.NoError(t, q2.Enqueue(context.Background(), 1, []mos.Fence{f}))
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	st, err := q2.Wait(ctx2, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePending, st.State)
}

func submitWithRecord(t *testing.T, dev *sim.Device, s *Slot, engine mos.Engine, cmds ...mhw.Command) mos.Fence {
	t.Helper()
	cb := mos.NewCommandBuffer("frame", mhw.SizeOf(cmds...)+RecordSize(engine)+mhw.SizeOf(mhw.BatchBufferEnd{}))
	em := mhw.NewEmitter()
	require.NoError(t, em.Emit(cb, cmds...))
	require.NoError(t, s.EmitRecord(em, cb, engine))
	require.NoError(t, em.Emit(cb, mhw.BatchBufferEnd{}))
	ctx, err := dev.CreateContext(mos.ContextParams{Engine: engine})
	require.NoError(t, err)
	f, err := dev.Submit(ctx, cb)
	require.NoError(t, err)
	return f
}

func TestQueue_RecordsReportBytesAndErrors(t *testing.T) {
	dev := sim.New(sim.Options{})
	q := newQueue(t, dev, 2)

	decode := []mhw.Command{
		mhw.PipeModeSelect{Mode: mhw.PipeModeLong, NumPipes: 1},
		mhw.BsdObject{Size: 256},
	}

	s, err := q.TryReserve(1)
	require.NoError(t, err)
	f := submitWithRecord(t, dev, s, mos.EngineVideo, decode...)
	require.NoError(t, q.Commit(s, []mos.Fence{f}))

	st, err := q.Wait(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, uint32(256), st.BytesDecoded)
	assert.ErrorIs(t, s.EmitRecord(mhw.NewEmitter(), mos.NewCommandBuffer("late", 64), mos.EngineVideo), errs.ErrInvalidParameter)

	dev.InjectDecodeError(0x2a)
	s, err = q.TryReserve(2)
	require.NoError(t, err)
	f = submitWithRecord(t, dev, s, mos.EngineVideo, decode...)
	require.NoError(t, q.Commit(s, []mos.Fence{f}))

	st, err = q.Wait(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, errs.CodeHardwareFault, st.Code)
	assert.Equal(t, uint32(0x2a), st.HWError)
}

func TestQueue_MissingRecordIsHardwareFault(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 1)

	s, err := q.TryReserve(1)
	require.NoError(t, err)
	require.NoError(t, s.EmitRecord(mhw.NewEmitter(), mos.NewCommandBuffer("dropped", 64), mos.EngineFirmware))
	require.NoError(t, q.Commit(s, []mos.Fence{doneFence()}))

	st, err := q.Wait(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, errs.CodeHardwareFault, st.Code)
}

func TestQueue_SlotsRecycle(t *testing.T) {
	q := newQueue(t, sim.New(sim.Options{}), 2)

	markers := map[uint32]bool{}
	for frame := uint64(1); frame <= 6; frame++ {
		s, err := q.TryReserve(frame)
		require.NoError(t, err)
		assert.False(t, markers[s.Marker()], "markers never repeat")
		markers[s.Marker()] = true
		require.NoError(t, q.Commit(s, []mos.Fence{doneFence()}))
		_, err = q.Wait(context.Background(), frame)
		require.NoError(t, err)
		_, err = q.Consume(frame)
		require.NoError(t, err)
	}
	assert.Zero(t, q.InUse())
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
}
