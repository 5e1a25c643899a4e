package mhw

import (
	"fmt"

	"github.com/ManuGH/mediahal/internal/mos"
)

// Address references a location inside a GPU resource. It encodes as two
// dwords: the resource handle (relocated at submit) and the byte offset.
type Address struct {
	Resource mos.Handle
	Offset   uint32
}

// Add returns a copied address advanced by n bytes.
func (a Address) Add(n uint32) Address {
	return Address{Resource: a.Resource, Offset: a.Offset + n}
}

const addressDwords = 2

// Command is one hardware instruction.
type Command interface {
	Client() Client
	Opcode() Opcode
	// Dwords returns the encoded length including the header.
	Dwords() int
	encodeBody(w *writer)
}

type pendingReloc struct {
	index int
	addr  Address
	write bool
}

// writer collects a command body. Index 0 is reserved for the header.
type writer struct {
	dw     []uint32
	relocs []pendingReloc
}

func (w *writer) u32(v uint32) { w.dw = append(w.dw, v) }

func (w *writer) flag(b bool) {
	if b {
		w.u32(1)
		return
	}
	w.u32(0)
}

func (w *writer) addr(a Address, write bool) {
	if a.Resource.Valid() {
		w.relocs = append(w.relocs, pendingReloc{index: len(w.dw), addr: a, write: write})
	}
	w.u32(uint32(a.Resource))
	w.u32(a.Offset)
}

type reader struct {
	dw  []uint32
	pos int
}

func (r *reader) u32() uint32 {
	if r.pos >= len(r.dw) {
		r.pos++
		return 0
	}
	v := r.dw[r.pos]
	r.pos++
	return v
}

func (r *reader) flag() bool { return r.u32() != 0 }

func (r *reader) addr() Address {
	h := mos.Handle(r.u32())
	return Address{Resource: h, Offset: r.u32()}
}

func (r *reader) overrun() bool { return r.pos > len(r.dw) }

// Encode serializes cmd into a standalone dword slice.
func Encode(cmd Command) ([]uint32, error) {
	w, err := encode(cmd)
	if err != nil {
		return nil, err
	}
	return w.dw, nil
}

func encode(cmd Command) (*writer, error) {
	w := &writer{dw: make([]uint32, 1, cmd.Dwords())}
	cmd.encodeBody(w)
	if len(w.dw) != cmd.Dwords() {
		return nil, fmt.Errorf("%T encoded %d dwords, declared %d", cmd, len(w.dw), cmd.Dwords())
	}
	h, err := PackHeader(Header{Client: cmd.Client(), Opcode: cmd.Opcode(), Dwords: len(w.dw)})
	if err != nil {
		return nil, fmt.Errorf("%T: %w", cmd, err)
	}
	w.dw[0] = h
	return w, nil
}

// SizeOf returns the encoded size of cmds in bytes.
func SizeOf(cmds ...Command) int {
	n := 0
	for _, c := range cmds {
		n += c.Dwords() * 4
	}
	return n
}
