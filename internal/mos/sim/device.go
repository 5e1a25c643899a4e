// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim is a deterministic in-process GPU. Submissions queue per
// engine and run when a fence is queried, so callers never block and
// tests observe exactly the order the hardware would.
package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

// Options configure a simulated device.
type Options struct {
	Generation string
	VideoPipes int
	// AllocBudget caps live allocation bytes. Zero means unlimited.
	AllocBudget int
	// AuthSequence lists successive values read from the firmware status
	// register. The last value repeats. Empty means authenticated at once.
	AuthSequence []uint32
	// HangAfter is the number of settle rounds a submission may stay
	// blocked on a semaphore with no engine making progress before it is
	// reset.
	HangAfter int
	// MaxCommands bounds one submission when no watchdog is armed.
	MaxCommands int
	// RecordTrace keeps every executed command for inspection.
	RecordTrace bool
	Logger      zerolog.Logger
}

// Stats are cumulative device counters.
type Stats struct {
	Submissions  int
	AuthReads    int
	ChainedJumps int
	HucRuns      int
	SfcFrames    int
	Resets       int
}

// Event is one executed command.
type Event struct {
	Engine string
	Label  string
	Cmd    mhw.Command
}

type resource struct {
	name   string
	kind   mos.ResourceKind
	data   []byte
	locked bool
}

// Device implements mos.Device.
type Device struct {
	mu     sync.Mutex
	opts   Options
	logger zerolog.Logger

	resources  map[mos.Handle]*resource
	nextHandle mos.Handle
	liveBytes  int
	failAllocs int

	contexts    map[mos.ContextID]mos.ContextParams
	nextContext mos.ContextID
	current     mos.ContextID
	hasCurrent  bool

	engines []*engine
	byKey   map[mos.ContextParams]*engine

	authIdx       int
	pendingDecErr uint32
	nextSubmit    uint64

	stats Stats
	trace []Event
}

var _ mos.Device = (*Device)(nil)

// New creates a device with one firmware engine, VideoPipes video engines
// and one post-processing engine.
func New(opts Options) *Device {
	if opts.Generation == "" {
		opts.Generation = "gen12"
	}
	if opts.VideoPipes < 1 {
		opts.VideoPipes = 1
	}
	if opts.HangAfter <= 0 {
		opts.HangAfter = 16
	}
	if opts.MaxCommands <= 0 {
		opts.MaxCommands = 1 << 16
	}
	d := &Device{
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "sim").Logger(),
		resources: make(map[mos.Handle]*resource),
		contexts:  make(map[mos.ContextID]mos.ContextParams),
		byKey:     make(map[mos.ContextParams]*engine),
	}
	d.addEngine(mos.ContextParams{Engine: mos.EngineFirmware})
	for i := 0; i < opts.VideoPipes; i++ {
		d.addEngine(mos.ContextParams{Engine: mos.EngineVideo, Pipe: i})
	}
	d.addEngine(mos.ContextParams{Engine: mos.EngineVideoProcess})
	return d
}

func (d *Device) addEngine(p mos.ContextParams) {
	e := &engine{dev: d, params: p, name: p.String(), regs: make(map[mhw.Register]uint32)}
	d.engines = append(d.engines, e)
	d.byKey[p] = e
}

// Info reports generation and video pipe count.
func (d *Device) Info() mos.DeviceInfo {
	return mos.DeviceInfo{Generation: d.opts.Generation, NumVideoPipes: d.opts.VideoPipes}
}

// Allocate implements mos.ResourceService.
func (d *Device) Allocate(p mos.AllocParams) (mos.Handle, error) {
	if p.Size <= 0 {
		return 0, errs.New(errs.CodeInvalidParameter, "allocate", "%q: size %d", p.Name, p.Size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failAllocs > 0 {
		d.failAllocs--
		return 0, errs.New(errs.CodeNoSpace, "allocate", "%q: injected failure", p.Name)
	}
	if d.opts.AllocBudget > 0 && d.liveBytes+p.Size > d.opts.AllocBudget {
		return 0, errs.New(errs.CodeNoSpace, "allocate", "%q: %d bytes over budget (%d/%d live)", p.Name, p.Size, d.liveBytes, d.opts.AllocBudget)
	}
	d.nextHandle++
	h := d.nextHandle
	d.resources[h] = &resource{name: p.Name, kind: p.Kind, data: make([]byte, p.Size)}
	d.liveBytes += p.Size
	return h, nil
}

// Lock implements mos.ResourceService.
func (d *Device) Lock(h mos.Handle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[h]
	if !ok {
		return nil, errs.New(errs.CodeInvalidParameter, "lock", "unknown handle %d", h)
	}
	if r.locked {
		return nil, errs.New(errs.CodeInvalidParameter, "lock", "%q already locked", r.name)
	}
	r.locked = true
	return r.data, nil
}

// Unlock implements mos.ResourceService.
func (d *Device) Unlock(h mos.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[h]
	if !ok {
		return errs.New(errs.CodeInvalidParameter, "unlock", "unknown handle %d", h)
	}
	if !r.locked {
		return errs.New(errs.CodeInvalidParameter, "unlock", "%q not locked", r.name)
	}
	r.locked = false
	return nil
}

// Free implements mos.ResourceService.
func (d *Device) Free(h mos.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[h]
	if !ok {
		return errs.New(errs.CodeInvalidParameter, "free", "unknown handle %d", h)
	}
	if r.locked {
		return errs.New(errs.CodeInvalidParameter, "free", "%q is locked", r.name)
	}
	d.liveBytes -= len(r.data)
	delete(d.resources, h)
	return nil
}

// CreateContext implements mos.ContextService. A context on a secondary
// stream gets its own submission queue on the engine instance.
func (d *Device) CreateContext(p mos.ContextParams) (mos.ContextID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.Stream < 0 {
		return 0, errs.New(errs.CodeInvalidParameter, "create context", "stream %d", p.Stream)
	}
	if _, ok := d.byKey[mos.ContextParams{Engine: p.Engine, Pipe: p.Pipe}]; !ok {
		return 0, errs.New(errs.CodeInvalidParameter, "create context", "no engine %s", p)
	}
	if _, ok := d.byKey[p]; !ok {
		d.addEngine(p)
	}
	d.nextContext++
	d.contexts[d.nextContext] = p
	return d.nextContext, nil
}

// DestroyContext implements mos.ContextService.
func (d *Device) DestroyContext(id mos.ContextID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.contexts[id]; !ok {
		return errs.New(errs.CodeInvalidParameter, "destroy context", "unknown context %d", id)
	}
	delete(d.contexts, id)
	if d.hasCurrent && d.current == id {
		d.hasCurrent = false
	}
	return nil
}

// SetCurrent implements mos.ContextService.
func (d *Device) SetCurrent(id mos.ContextID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.contexts[id]; !ok {
		return errs.New(errs.CodeInvalidParameter, "set current", "unknown context %d", id)
	}
	d.current, d.hasCurrent = id, true
	return nil
}

// Current implements mos.ContextService.
func (d *Device) Current() (mos.ContextID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.hasCurrent
}

// Submit seals cb and queues it on the context's engine.
func (d *Device) Submit(ctx mos.ContextID, cb *mos.CommandBuffer) (mos.Fence, error) {
	if cb == nil {
		return nil, errs.New(errs.CodeInvalidParameter, "submit", "nil command buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.contexts[ctx]
	if !ok {
		return nil, errs.New(errs.CodeInvalidParameter, "submit", "unknown context %d", ctx)
	}
	cb.Seal()
	e := d.byKey[p]
	d.nextSubmit++
	s := &submission{
		id:     fmt.Sprintf("%s#%d", e.name, d.nextSubmit),
		label:  cb.Label(),
		frames: []frame{{dws: cb.Dwords()}},
	}
	e.queue = append(e.queue, s)
	d.stats.Submissions++
	return &fence{dev: d, sub: s}, nil
}

// Settle runs every engine until no further progress is possible.
func (d *Device) Settle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked()
}

func (d *Device) settleLocked() {
	for {
		for d.step() {
		}
		if !d.detectHangs() {
			return
		}
	}
}

// step gives every engine one run. It reports whether any engine executed
// at least one command.
func (d *Device) step() bool {
	progressed := false
	for _, e := range d.engines {
		if e.run() {
			progressed = true
		}
	}
	return progressed
}

// detectHangs counts a stall for every blocked head submission and resets
// those past HangAfter. It reports whether any reset happened.
func (d *Device) detectHangs() bool {
	reset := false
	for _, e := range d.engines {
		s := e.head()
		if s == nil || !s.blocked {
			continue
		}
		s.stalls++
		if s.stalls > d.opts.HangAfter {
			e.reset(s, "semaphore wait never satisfied")
			reset = true
		}
	}
	return reset
}

// InjectAllocFailures makes the next n allocations fail with NoSpace.
func (d *Device) InjectAllocFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAllocs = n
}

// InjectDecodeError makes the next bitstream decode report code in the
// video engine's error status register.
func (d *Device) InjectDecodeError(code uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingDecErr = code
}

// SetAuthSequence replaces the firmware status sequence.
func (d *Device) SetAuthSequence(seq ...uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.AuthSequence = seq
	d.authIdx = 0
}

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Trace returns executed commands when RecordTrace is set.
func (d *Device) Trace() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.trace))
	copy(out, d.trace)
	return out
}

// LiveAllocations returns the number of resources not yet freed.
func (d *Device) LiveAllocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

func (d *Device) nextAuthValue() uint32 {
	d.stats.AuthReads++
	seq := d.opts.AuthSequence
	if len(seq) == 0 {
		return mhw.HucAuthenticatedMask
	}
	i := d.authIdx
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		d.authIdx++
	}
	return seq[i]
}

func (d *Device) memory(a mhw.Address, n int) ([]byte, error) {
	r, ok := d.resources[a.Resource]
	if !ok {
		return nil, fmt.Errorf("page fault: handle %d", a.Resource)
	}
	end := int(a.Offset) + n
	if a.Offset%4 != 0 || end > len(r.data) {
		return nil, fmt.Errorf("page fault: %q offset %d+%d of %d", r.name, a.Offset, n, len(r.data))
	}
	return r.data[a.Offset:end], nil
}

func (d *Device) read32(a mhw.Address) (uint32, error) {
	b, err := d.memory(a, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Device) write32(a mhw.Address, v uint32) error {
	b, err := d.memory(a, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// batch returns the dwords of a batch buffer from a.Offset to its end.
func (d *Device) batch(a mhw.Address) ([]uint32, error) {
	r, ok := d.resources[a.Resource]
	if !ok {
		return nil, fmt.Errorf("page fault: batch handle %d", a.Resource)
	}
	if a.Offset%4 != 0 || int(a.Offset) >= len(r.data) {
		return nil, fmt.Errorf("page fault: batch %q offset %d", r.name, a.Offset)
	}
	raw := r.data[a.Offset:]
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}
