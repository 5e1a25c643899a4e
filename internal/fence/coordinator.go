// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/log"
	"github.com/ManuGH/mediahal/internal/metrics"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

// Config parameterizes a Coordinator.
type Config struct {
	Device  mos.Device
	Emitter mhw.Emitter
	Tokens  int
	// AuthRingDepth is the number of recycled authentication loop buffers.
	AuthRingDepth int
	// WatchdogThreshold bounds the authentication loop in executed commands.
	WatchdogThreshold uint32
	Logger            zerolog.Logger
}

// Coordinator emits the cross-engine ordering commands of a pipeline and
// owns the engine contexts it switches between.
type Coordinator struct {
	dev      mos.Device
	emitter  mhw.Emitter
	pool     *Pool
	watchdog uint32
	logger   zerolog.Logger

	mu       sync.Mutex
	contexts map[mos.ContextParams]mos.ContextID

	authStatus mos.Handle
	authRing   []mos.Handle
	authIdx    int
}

// New allocates the token pool and the authentication ring.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Device == nil || cfg.Emitter == nil {
		return nil, errs.New(errs.CodeInvalidParameter, "fence coordinator", "device and emitter are required")
	}
	if cfg.AuthRingDepth < 1 || cfg.WatchdogThreshold == 0 {
		return nil, errs.New(errs.CodeInvalidParameter, "fence coordinator", "auth ring depth %d, watchdog %d", cfg.AuthRingDepth, cfg.WatchdogThreshold)
	}
	rel := mos.NewReleaser(cfg.Device)
	defer func() { _ = rel.Release() }()

	pool, err := NewPool(cfg.Device, cfg.Tokens, metrics.SetSyncTokensInUse)
	if err != nil {
		return nil, err
	}
	rel.Track(pool.buf)

	c := &Coordinator{
		dev:      cfg.Device,
		emitter:  cfg.Emitter,
		pool:     pool,
		watchdog: cfg.WatchdogThreshold,
		logger:   log.Component(cfg.Logger, "fence"),
		contexts: make(map[mos.ContextParams]mos.ContextID),
	}

	c.authStatus, err = rel.Allocate(mos.AllocParams{Name: "auth-status", Size: cfg.AuthRingDepth * 4, Kind: mos.KindBuffer})
	if err != nil {
		return nil, err
	}
	for i := 0; i < cfg.AuthRingDepth; i++ {
		bb, err := rel.Allocate(mos.AllocParams{Name: fmt.Sprintf("auth-loop-%d", i), Size: authLoopBytes, Kind: mos.KindBatchBuffer})
		if err != nil {
			return nil, err
		}
		if err := c.writeAuthLoop(bb, i); err != nil {
			return nil, err
		}
		c.authRing = append(c.authRing, bb)
	}

	rel.Disarm()
	return c, nil
}

// Pool exposes the token pool.
func (c *Coordinator) Pool() *Pool { return c.pool }

// SwitchEngine makes the context bound to p current, creating it on first
// use, and returns it.
func (c *Coordinator) SwitchEngine(p mos.ContextParams) (mos.ContextID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.contexts[p]
	if !ok {
		var err error
		id, err = c.dev.CreateContext(p)
		if err != nil {
			return 0, err
		}
		c.contexts[p] = id
		c.logger.Debug().Str(log.FieldEngine, p.String()).Uint32("context", uint32(id)).Msg("context created")
	}
	if cur, ok := c.dev.Current(); ok && cur == id {
		return id, nil
	}
	if err := c.dev.SetCurrent(id); err != nil {
		return 0, err
	}
	return id, nil
}

// Signal appends the producer side of t.
func (c *Coordinator) Signal(cb *mos.CommandBuffer, t *Token) error {
	if t == nil || t.released {
		return errs.New(errs.CodeInvalidParameter, "signal", "token not held")
	}
	if t.signaled {
		return errs.New(errs.CodeInvalidParameter, "signal", "slot %d signaled twice", t.slot)
	}
	if err := c.emitter.Emit(cb, mhw.SemaphoreSignal{Addr: t.Addr(), Value: t.value}); err != nil {
		return err
	}
	t.signaled = true
	return nil
}

// Wait appends a consumer side of t. The engine, not the CPU, blocks.
func (c *Coordinator) Wait(cb *mos.CommandBuffer, t *Token) error {
	if t == nil || t.released {
		return errs.New(errs.CodeInvalidParameter, "wait", "token not held")
	}
	if err := c.emitter.Emit(cb, mhw.SemaphoreWait{Addr: t.Addr(), Value: t.value, Op: mhw.CompareGreaterOrEqual}); err != nil {
		return err
	}
	t.waits++
	return nil
}

// SignalSize and WaitSize are the bytes Signal and Wait append.
func SignalSize() int { return mhw.SizeOf(mhw.SemaphoreSignal{}) }
func WaitSize() int   { return mhw.SizeOf(mhw.SemaphoreWait{}) }

// authLoop is the second-level buffer body: copy the firmware status
// register, end the buffer once the authenticated bit is set, else chain
// back to the start of the same buffer.
func (c *Coordinator) authLoop(self mos.Handle, slot int) []mhw.Command {
	status := mhw.Address{Resource: c.authStatus, Offset: uint32(slot * 4)}
	return []mhw.Command{
		mhw.StoreRegisterMem{Register: mhw.RegHucStatus2, Addr: status},
		mhw.ConditionalBatchBufferEnd{Addr: status, Mask: mhw.HucAuthenticatedMask, Compare: mhw.HucNotAuthenticated},
		mhw.BatchBufferStart{Target: mhw.Address{Resource: self}},
	}
}

var authLoopBytes = mhw.SizeOf(
	mhw.StoreRegisterMem{},
	mhw.ConditionalBatchBufferEnd{},
	mhw.BatchBufferStart{},
)

func (c *Coordinator) writeAuthLoop(bb mos.Handle, slot int) error {
	cb := mos.NewCommandBuffer("auth-loop", authLoopBytes)
	if err := c.emitter.Emit(cb, c.authLoop(bb, slot)...); err != nil {
		return err
	}
	mem, err := c.dev.Lock(bb)
	if err != nil {
		return err
	}
	for i, dw := range cb.Dwords() {
		binary.LittleEndian.PutUint32(mem[i*4:], dw)
	}
	return c.dev.Unlock(bb)
}

// AddAuthCheck arms the watchdog and calls into the next loop buffer of
// the ring. The firmware payload emitted after it runs only once the
// firmware reports authenticated; if it never does the watchdog resets
// the engine.
func (c *Coordinator) AddAuthCheck(cb *mos.CommandBuffer) error {
	c.mu.Lock()
	slot := c.authIdx
	c.authIdx = (c.authIdx + 1) % len(c.authRing)
	bb := c.authRing[slot]
	c.mu.Unlock()

	err := c.emitter.Emit(cb,
		mhw.LoadRegisterImm{Register: mhw.RegWatchdogThreshold, Value: c.watchdog},
		mhw.LoadRegisterImm{Register: mhw.RegWatchdogControl, Value: mhw.WatchdogEnable},
		mhw.BatchBufferStart{Target: mhw.Address{Resource: bb}, SecondLevel: true},
	)
	if err != nil {
		return err
	}
	metrics.RecordAuthCheck()
	c.logger.Trace().Int("ring_slot", slot).Msg("auth check emitted")
	return nil
}

// AuthCheckSize is the bytes AddAuthCheck appends.
func AuthCheckSize() int {
	return mhw.SizeOf(mhw.LoadRegisterImm{}, mhw.LoadRegisterImm{}, mhw.BatchBufferStart{})
}

// StopWatchdog disarms the watchdog after the guarded payload.
func (c *Coordinator) StopWatchdog(cb *mos.CommandBuffer) error {
	return c.emitter.Emit(cb, mhw.LoadRegisterImm{Register: mhw.RegWatchdogControl, Value: mhw.WatchdogDisable})
}

// StopWatchdogSize is the bytes StopWatchdog appends.
func StopWatchdogSize() int { return mhw.SizeOf(mhw.LoadRegisterImm{}) }

// Close destroys the contexts and frees the pool and the ring.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errList []error
	for p, id := range c.contexts {
		if err := c.dev.DestroyContext(id); err != nil {
			errList = append(errList, fmt.Errorf("destroy %s: %w", p, err))
		}
	}
	c.contexts = map[mos.ContextParams]mos.ContextID{}
	for _, bb := range c.authRing {
		if err := c.dev.Free(bb); err != nil {
			errList = append(errList, err)
		}
	}
	c.authRing = nil
	if c.authStatus.Valid() {
		if err := c.dev.Free(c.authStatus); err != nil {
			errList = append(errList, err)
		}
		c.authStatus = 0
	}
	if err := c.pool.Close(); err != nil {
		errList = append(errList, err)
	}
	return errors.Join(errList...)
}
