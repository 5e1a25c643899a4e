// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package statusreport tracks submitted frames until the caller consumes
// their completion status. The ring has a fixed depth; reserving a slot
// when the ring is full blocks the caller.
package statusreport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/metrics"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

// State is the externally visible state of an entry.
type State int

const (
	StatePending State = iota
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is what the caller observes for one frame.
type Status struct {
	Frame uint64
	State State
	// Code is set for StateError.
	Code errs.Code
	Err  error
	// BytesDecoded sums the bytes-processed registers of the video pipes.
	BytesDecoded uint32
	// HWError is the first non-zero error register value, if any.
	HWError     uint32
	Submissions int
}

// Record layout inside a status buffer slot.
const (
	RecordBytes      = 16
	MaxRecords       = 32
	offMarker        = 0
	offError         = 4
	offBytes         = 8
	slotStride       = RecordBytes * MaxRecords
	backpressureNote = "status ring full, waiting for consume"
)

type slotState int

const (
	slotFree slotState = iota
	slotReserved
	slotPending
	slotDone
)

type entry struct {
	state    slotState
	frame    uint64
	marker   uint32
	fences   []mos.Fence
	records  []mos.Engine
	onRetire []func()
	status   Status
}

// Config parameterizes a Queue.
type Config struct {
	Resources    mos.ResourceService
	Depth        int
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Queue is the status report ring.
type Queue struct {
	rs           mos.ResourceService
	buf          mos.Handle
	sem          *semaphore.Weighted
	pollInterval time.Duration
	logger       zerolog.Logger
	warn         *rate.Limiter

	mu         sync.Mutex
	entries    []entry
	byFrame    map[uint64]int
	cursor     int
	used       int
	nextMarker uint32
}

// New allocates the status buffer for depth entries.
func New(cfg Config) (*Queue, error) {
	if cfg.Resources == nil || cfg.Depth < 1 {
		return nil, errs.New(errs.CodeInvalidParameter, "status queue", "resources=%v depth=%d", cfg.Resources != nil, cfg.Depth)
	}
	buf, err := cfg.Resources.Allocate(mos.AllocParams{Name: "status-report", Size: cfg.Depth * slotStride, Kind: mos.KindBuffer})
	if err != nil {
		return nil, err
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Millisecond
	}
	return &Queue{
		rs:           cfg.Resources,
		buf:          buf,
		sem:          semaphore.NewWeighted(int64(cfg.Depth)),
		pollInterval: poll,
		logger:       log.Component(cfg.Logger, "statusreport"),
		warn:         rate.NewLimiter(rate.Every(time.Second), 1),
		entries:      make([]entry, cfg.Depth),
		byFrame:      make(map[uint64]int, cfg.Depth),
	}, nil
}

// Slot is a reserved ring entry. Command buffers of the frame write their
// completion records into it before it is committed.
type Slot struct {
	q       *Queue
	index   int
	frame   uint64
	marker  uint32
	records []mos.Engine
	closed  bool
}

func (s *Slot) Frame() uint64  { return s.frame }
func (s *Slot) Marker() uint32 { return s.marker }
func (s *Slot) Index() int     { return s.index }

// RecordSize is the bytes EmitRecord appends for engine.
func RecordSize(engine mos.Engine) int {
	if engine == mos.EngineVideo {
		return mhw.SizeOf(mhw.StoreDataImm{}, mhw.StoreRegisterMem{}, mhw.StoreRegisterMem{})
	}
	return mhw.SizeOf(mhw.StoreDataImm{}, mhw.StoreRegisterMem{})
}

func errorRegister(engine mos.Engine) mhw.Register {
	switch engine {
	case mos.EngineVideo:
		return mhw.RegVdboxErrorStatus
	case mos.EngineVideoProcess:
		return mhw.RegVeboxErrorStatus
	default:
		return mhw.RegHucStatus
	}
}

// EmitRecord appends the completion record of one submission: the slot
// marker, the engine's error register and, for video engines, the
// bytes-processed register.
func (s *Slot) EmitRecord(em mhw.Emitter, cb *mos.CommandBuffer, engine mos.Engine) error {
	if s.closed {
		return errs.New(errs.CodeInvalidParameter, "status record", "frame %d: slot already committed", s.frame)
	}
	if len(s.records) >= MaxRecords {
		return errs.New(errs.CodeNoSpace, "status record", "frame %d: more than %d submissions", s.frame, MaxRecords)
	}
	base := mhw.Address{Resource: s.q.buf, Offset: uint32(s.index*slotStride + len(s.records)*RecordBytes)}
	cmds := []mhw.Command{
		mhw.StoreDataImm{Addr: base.Add(offMarker), Value: s.marker},
		mhw.StoreRegisterMem{Register: errorRegister(engine), Addr: base.Add(offError)},
	}
	if engine == mos.EngineVideo {
		cmds = append(cmds, mhw.StoreRegisterMem{Register: mhw.RegVdboxBytesDecoded, Addr: base.Add(offBytes)})
	}
	if err := em.Emit(cb, cmds...); err != nil {
		return err
	}
	s.records = append(s.records, engine)
	return nil
}

// Reserve takes a ring slot for frame, blocking while the ring is full.
func (q *Queue) Reserve(ctx context.Context, frame uint64) (*Slot, error) {
	if err := q.checkDuplicate(frame); err != nil {
		return nil, err
	}
	if !q.sem.TryAcquire(1) {
		start := time.Now()
		if q.warn.Allow() {
			q.logger.Warn().Uint64(log.FieldFrame, frame).Int("depth", len(q.entries)).Msg(backpressureNote)
		}
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("reserve frame %d: %w", frame, err)
		}
		metrics.ObserveBackpressure(time.Since(start))
	}
	return q.take(frame)
}

// TryReserve is Reserve without blocking. A full ring reports NoSpace.
func (q *Queue) TryReserve(frame uint64) (*Slot, error) {
	if err := q.checkDuplicate(frame); err != nil {
		return nil, err
	}
	if !q.sem.TryAcquire(1) {
		return nil, errs.New(errs.CodeNoSpace, "reserve", "frame %d: status ring full", frame)
	}
	return q.take(frame)
}

func (q *Queue) checkDuplicate(frame uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byFrame[frame]; ok {
		return errs.New(errs.CodeInvalidParameter, "reserve", "frame %d already has an unconsumed entry", frame)
	}
	return nil
}

// take claims a free entry. The caller holds one semaphore unit.
func (q *Queue) take(frame uint64) (*Slot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byFrame[frame]; ok {
		q.sem.Release(1)
		return nil, errs.New(errs.CodeInvalidParameter, "reserve", "frame %d already has an unconsumed entry", frame)
	}
	idx := -1
	for i := 0; i < len(q.entries); i++ {
		c := (q.cursor + i) % len(q.entries)
		if q.entries[c].state == slotFree {
			idx = c
			break
		}
	}
	if idx < 0 {
		q.sem.Release(1)
		return nil, errs.New(errs.CodeNoSpace, "reserve", "frame %d: no free entry", frame)
	}
	if err := q.clearSlot(idx); err != nil {
		q.sem.Release(1)
		return nil, err
	}

	q.cursor = (idx + 1) % len(q.entries)
	q.nextMarker++
	if q.nextMarker == 0 {
		q.nextMarker = 1
	}
	q.entries[idx] = entry{state: slotReserved, frame: frame, marker: q.nextMarker}
	q.byFrame[frame] = idx
	q.used++
	metrics.SetStatusDepth(q.used)
	return &Slot{q: q, index: idx, frame: frame, marker: q.nextMarker}, nil
}

func (q *Queue) clearSlot(idx int) error {
	mem, err := q.rs.Lock(q.buf)
	if err != nil {
		return err
	}
	clear(mem[idx*slotStride : (idx+1)*slotStride])
	return q.rs.Unlock(q.buf)
}

// Commit marks the slot submitted. onRetire callbacks run once the entry
// leaves Pending.
func (q *Queue) Commit(s *Slot, fences []mos.Fence, onRetire ...func()) error {
	if len(fences) == 0 {
		return errs.New(errs.CodeInvalidParameter, "commit", "frame %d: no fences", s.frame)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.reserved(s)
	if err != nil {
		return err
	}
	e.state = slotPending
	e.fences = append([]mos.Fence(nil), fences...)
	e.records = s.records
	e.onRetire = onRetire
	e.status = Status{Frame: s.frame, State: StatePending, Submissions: len(fences)}
	s.closed = true
	return nil
}

// Abort records a CPU-side failure for the slot's frame. The entry turns
// Error with the code of cause and waits to be consumed.
func (q *Queue) Abort(s *Slot, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.reserved(s)
	if err != nil {
		return err
	}
	code := errs.CodeOf(cause)
	if code == errs.CodeNone {
		code = errs.CodeInvalidParameter
	}
	e.state = slotDone
	e.status = Status{Frame: s.frame, State: StateError, Code: code, Err: cause}
	s.closed = true
	metrics.RecordFrameAborted(code.String())
	return nil
}

func (q *Queue) reserved(s *Slot) (*entry, error) {
	if s == nil || s.q != q || s.closed {
		return nil, errs.New(errs.CodeInvalidParameter, "status slot", "slot not reserved")
	}
	e := &q.entries[s.index]
	if e.state != slotReserved || e.frame != s.frame {
		return nil, errs.New(errs.CodeInvalidParameter, "status slot", "frame %d: slot %d not reserved", s.frame, s.index)
	}
	return e, nil
}

// Enqueue reserves and commits in one step for submissions that carry no
// completion records.
func (q *Queue) Enqueue(ctx context.Context, frame uint64, fences []mos.Fence) error {
	if len(fences) == 0 {
		return errs.New(errs.CodeInvalidParameter, "enqueue", "frame %d: no fences", frame)
	}
	s, err := q.Reserve(ctx, frame)
	if err != nil {
		return err
	}
	return q.Commit(s, fences)
}

// Poll refreshes every pending entry and returns how many left Pending.
func (q *Queue) Poll() int {
	q.mu.Lock()
	var retire []func()
	n := 0
	for i := range q.entries {
		if q.entries[i].state != slotPending {
			continue
		}
		if fns, ok := q.refresh(i); ok {
			retire = append(retire, fns...)
			n++
		}
	}
	q.mu.Unlock()

	for _, fn := range retire {
		fn()
	}
	return n
}

// refresh checks the fences of entry i. It reports whether the entry left
// Pending and returns its retire callbacks.
func (q *Queue) refresh(i int) ([]func(), bool) {
	e := &q.entries[i]
	var fenceErr error
	for _, f := range e.fences {
		done, err := f.Status()
		if !done {
			return nil, false
		}
		if err != nil && fenceErr == nil {
			fenceErr = fmt.Errorf("fence %s: %w", f.ID(), err)
		}
	}

	st := e.status
	switch {
	case fenceErr != nil:
		st.State = StateError
		st.Code = errs.CodeOf(fenceErr)
		st.Err = fenceErr
	default:
		q.readRecords(i, e, &st)
	}
	e.status = st
	e.state = slotDone
	e.fences = nil

	outcome := "completed"
	if st.State == StateError {
		outcome = st.Code.String()
		q.logger.Warn().Uint64(log.FieldFrame, e.frame).Str(log.FieldCode, outcome).Err(st.Err).Msg("frame failed")
	} else {
		q.logger.Debug().Uint64(log.FieldFrame, e.frame).Uint32(log.FieldBytes, st.BytesDecoded).Msg("frame completed")
	}
	metrics.RecordFrameCompleted(outcome)

	fns := e.onRetire
	e.onRetire = nil
	return fns, true
}

func (q *Queue) readRecords(i int, e *entry, st *Status) {
	st.State = StateCompleted
	if len(e.records) == 0 {
		return
	}
	mem, err := q.rs.Lock(q.buf)
	if err != nil {
		st.State, st.Code, st.Err = StateError, errs.CodeOf(err), err
		return
	}
	defer func() { _ = q.rs.Unlock(q.buf) }()

	for r, engine := range e.records {
		rec := mem[i*slotStride+r*RecordBytes:]
		marker := binary.LittleEndian.Uint32(rec[offMarker:])
		hwErr := binary.LittleEndian.Uint32(rec[offError:])
		if marker != e.marker {
			st.State, st.Code = StateError, errs.CodeHardwareFault
			st.Err = errs.New(errs.CodeHardwareFault, "status record", "frame %d record %d: marker %#x, want %#x", e.frame, r, marker, e.marker)
			return
		}
		if hwErr != 0 && st.HWError == 0 {
			st.HWError = hwErr
			st.State, st.Code = StateError, errs.CodeHardwareFault
			st.Err = errs.New(errs.CodeHardwareFault, "status record", "frame %d: %s error %#x", e.frame, engine, hwErr)
		}
		if engine == mos.EngineVideo {
			st.BytesDecoded += binary.LittleEndian.Uint32(rec[offBytes:])
		}
	}
}

// GetStatus refreshes and returns the entry of frame.
func (q *Queue) GetStatus(frame uint64) (Status, error) {
	q.mu.Lock()
	idx, ok := q.byFrame[frame]
	if !ok {
		q.mu.Unlock()
		return Status{}, errs.New(errs.CodeNotFound, "status", "frame %d", frame)
	}
	var retire []func()
	e := &q.entries[idx]
	switch e.state {
	case slotReserved:
		q.mu.Unlock()
		return Status{Frame: frame, State: StatePending}, nil
	case slotPending:
		retire, _ = q.refresh(idx)
	}
	st := e.status
	q.mu.Unlock()

	for _, fn := range retire {
		fn()
	}
	return st, nil
}

// Wait polls frame at the configured interval until it leaves Pending or
// ctx ends.
func (q *Queue) Wait(ctx context.Context, frame uint64) (Status, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		st, err := q.GetStatus(frame)
		if err != nil || st.State != StatePending {
			return st, err
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Consume removes a finished entry and frees its slot. Consuming a pending
// entry is a caller error.
func (q *Queue) Consume(frame uint64) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx, ok := q.byFrame[frame]
	if !ok {
		return Status{}, errs.New(errs.CodeNotFound, "consume", "frame %d", frame)
	}
	e := &q.entries[idx]
	if e.state != slotDone {
		return Status{}, errs.New(errs.CodeInvalidParameter, "consume", "frame %d is still pending", frame)
	}
	st := e.status
	q.entries[idx] = entry{}
	delete(q.byFrame, frame)
	q.used--
	q.sem.Release(1)
	metrics.SetStatusDepth(q.used)
	return st, nil
}

// Depth is the ring capacity.
func (q *Queue) Depth() int { return len(q.entries) }

// Pending counts reserved and submitted entries not yet finished.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.state == slotReserved || e.state == slotPending {
			n++
		}
	}
	return n
}

// InUse counts entries not yet consumed.
func (q *Queue) InUse() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Close frees the status buffer.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.buf.Valid() {
		return nil
	}
	err := q.rs.Free(q.buf)
	q.buf = 0
	return err
}
