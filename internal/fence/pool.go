// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fence orders work across engines with hardware semaphores.
package fence

import (
	"sync"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

const slotBytes = 8

// Token is one synchronization edge. The producer signals it once, every
// consumer waits on it, and it is released after the last wait retired.
type Token struct {
	pool     *Pool
	slot     int
	value    uint32
	signaled bool
	waits    int
	released bool
}

// Addr is the semaphore location of the token.
func (t *Token) Addr() mhw.Address {
	return mhw.Address{Resource: t.pool.buf, Offset: uint32(t.slot * slotBytes)}
}

// Value is what the producer writes and consumers wait for.
func (t *Token) Value() uint32 { return t.value }

// Slot is the index of the token inside the pool.
func (t *Token) Slot() int { return t.slot }

// Signaled reports whether a signal has been emitted.
func (t *Token) Signaled() bool { return t.signaled }

// Waits returns the number of waits emitted.
func (t *Token) Waits() int { return t.waits }

// Pool hands out tokens backed by one sync buffer. Each reuse of a slot
// raises its value, so a stale signal never satisfies a newer wait.
type Pool struct {
	rs  mos.ResourceService
	buf mos.Handle

	mu    sync.Mutex
	free  []int
	last  []uint32
	inUse int

	onUse func(inUse int)
}

// NewPool allocates a sync buffer with slots tokens. onUse, if set,
// observes the number of tokens in use after every change.
func NewPool(rs mos.ResourceService, slots int, onUse func(int)) (*Pool, error) {
	if slots < 1 {
		return nil, errs.New(errs.CodeInvalidParameter, "fence pool", "%d slots", slots)
	}
	buf, err := rs.Allocate(mos.AllocParams{Name: "sync-tokens", Size: slots * slotBytes, Kind: mos.KindBuffer})
	if err != nil {
		return nil, err
	}
	p := &Pool{rs: rs, buf: buf, last: make([]uint32, slots), onUse: onUse}
	for i := slots - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}
	return p, nil
}

// Acquire returns a fresh token, or NoSpace when every slot is in use.
func (p *Pool) Acquire() (*Token, error) {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		return nil, errs.New(errs.CodeNoSpace, "acquire token", "all %d sync tokens in use", len(p.last))
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.last[slot]++
	t := &Token{pool: p, slot: slot, value: p.last[slot]}
	p.inUse++
	n := p.inUse
	p.mu.Unlock()

	if p.onUse != nil {
		p.onUse(n)
	}
	return t, nil
}

// Release recycles t. The token must have been signaled and waited on.
func (p *Pool) Release(t *Token) error {
	if t == nil || t.pool != p {
		return errs.New(errs.CodeInvalidParameter, "release token", "foreign token")
	}
	if t.released {
		return errs.New(errs.CodeInvalidParameter, "release token", "slot %d released twice", t.slot)
	}
	if !t.signaled || t.waits == 0 {
		return errs.New(errs.CodeInvalidParameter, "release token", "slot %d: signaled=%t waits=%d", t.slot, t.signaled, t.waits)
	}
	return p.put(t)
}

// Discard recycles t without the signal/wait checks. It is used when the
// frame that acquired t was abandoned before submission.
func (p *Pool) Discard(t *Token) error {
	if t == nil || t.pool != p {
		return errs.New(errs.CodeInvalidParameter, "discard token", "foreign token")
	}
	if t.released {
		return nil
	}
	return p.put(t)
}

func (p *Pool) put(t *Token) error {
	t.released = true
	p.mu.Lock()
	p.free = append(p.free, t.slot)
	p.inUse--
	n := p.inUse
	p.mu.Unlock()

	if p.onUse != nil {
		p.onUse(n)
	}
	return nil
}

// InUse returns the number of tokens not yet released.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int { return len(p.last) }

// Close frees the sync buffer.
func (p *Pool) Close() error {
	if !p.buf.Valid() {
		return nil
	}
	err := p.rs.Free(p.buf)
	p.buf = 0
	return err
}
