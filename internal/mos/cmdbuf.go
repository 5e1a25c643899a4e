// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mos

import (
	"github.com/ManuGH/mediahal/internal/errs"
)

// Reloc records a resource reference inside a command buffer so the
// submission layer can patch the final GPU address.
type Reloc struct {
	Dword    int // index of the address dword inside the buffer
	Resource Handle
	Offset   uint32
	Write    bool
}

// CommandBuffer is a growable dword stream plus its relocation list. It has
// exactly one writer until Seal; afterwards it is read-only.
type CommandBuffer struct {
	label    string
	dw       []uint32
	relocs   []Reloc
	reserved int
	sealed   bool
}

// NewCommandBuffer returns an empty buffer with reserveBytes pre-allocated.
func NewCommandBuffer(label string, reserveBytes int) *CommandBuffer {
	cb := &CommandBuffer{label: label}
	cb.Reserve(reserveBytes)
	return cb
}

// Label names the buffer in logs.
func (cb *CommandBuffer) Label() string { return cb.label }

// Reserve adds n bytes to the pre-allocated budget.
func (cb *CommandBuffer) Reserve(n int) {
	if n <= 0 {
		return
	}
	cb.reserved += n
	want := (cb.reserved + 3) / 4
	if cap(cb.dw) < want {
		grown := make([]uint32, len(cb.dw), want)
		copy(grown, cb.dw)
		cb.dw = grown
	}
}

// Reserved returns the pre-allocated budget in bytes.
func (cb *CommandBuffer) Reserved() int { return cb.reserved }

// Append writes raw dwords at the end of the stream.
func (cb *CommandBuffer) Append(dws ...uint32) error {
	if cb.sealed {
		return errs.New(errs.CodeInvalidParameter, "append", "command buffer %q is sealed", cb.label)
	}
	cb.dw = append(cb.dw, dws...)
	return nil
}

// AddReloc records a relocation. Dword must point inside the stream.
func (cb *CommandBuffer) AddReloc(r Reloc) error {
	if cb.sealed {
		return errs.New(errs.CodeInvalidParameter, "reloc", "command buffer %q is sealed", cb.label)
	}
	if r.Dword < 0 || r.Dword >= len(cb.dw) {
		return errs.New(errs.CodeInvalidParameter, "reloc", "dword %d outside buffer of %d", r.Dword, len(cb.dw))
	}
	if !r.Resource.Valid() {
		return errs.New(errs.CodeInvalidParameter, "reloc", "invalid resource at dword %d", r.Dword)
	}
	cb.relocs = append(cb.relocs, r)
	return nil
}

// Len returns the number of dwords written.
func (cb *CommandBuffer) Len() int { return len(cb.dw) }

// Bytes returns the number of bytes written.
func (cb *CommandBuffer) Bytes() int { return len(cb.dw) * 4 }

// Dwords exposes the stream. Callers must not modify it.
func (cb *CommandBuffer) Dwords() []uint32 { return cb.dw }

// Relocs exposes the relocation list. Callers must not modify it.
func (cb *CommandBuffer) Relocs() []Reloc { return cb.relocs }

// Seal makes the buffer immutable. Sealing twice is harmless.
func (cb *CommandBuffer) Seal() { cb.sealed = true }

// Sealed reports whether the buffer has been handed off.
func (cb *CommandBuffer) Sealed() bool { return cb.sealed }

// Overrun reports whether more bytes were written than reserved.
func (cb *CommandBuffer) Overrun() bool { return cb.Bytes() > cb.reserved }
