// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mhw

// MI opcodes.
const (
	OpNoop                      Opcode = 0x00
	OpBatchBufferEnd            Opcode = 0x0A
	OpSemaphoreSignal           Opcode = 0x1B
	OpSemaphoreWait             Opcode = 0x1C
	OpStoreDataImm              Opcode = 0x20
	OpLoadRegisterImm           Opcode = 0x22
	OpStoreRegisterMem          Opcode = 0x24
	OpFlushDw                   Opcode = 0x26
	OpBatchBufferStart          Opcode = 0x31
	OpConditionalBatchBufferEnd Opcode = 0x36
)

// Flag dword layouts.
const (
	BBSecondLevelShift = 22
	BBSecondLevelMask  = uint32(1) << BBSecondLevelShift

	CondEndIfEqualShift = 0
	CondEndIfEqualMask  = uint32(1) << CondEndIfEqualShift

	SemCompareShift = 12
	SemCompareMask  = uint32(0x7) << SemCompareShift

	FlushPostSyncShift = 14
	FlushPostSyncMask  = uint32(1) << FlushPostSyncShift
)

// Noop pads a stream.
type Noop struct{}

func (Noop) Client() Client       { return ClientMI }
func (Noop) Opcode() Opcode       { return OpNoop }
func (Noop) Dwords() int          { return 2 }
func (Noop) encodeBody(w *writer) { w.u32(0) }

func (*Noop) decodeBody(r *reader) error {
	r.u32()
	return nil
}

// BatchBufferStart jumps to Target. A second-level start returns to the
// dword after itself at the target's BatchBufferEnd; a chained start does
// not return.
type BatchBufferStart struct {
	Target      Address
	SecondLevel bool
}

func (BatchBufferStart) Client() Client { return ClientMI }
func (BatchBufferStart) Opcode() Opcode { return OpBatchBufferStart }
func (BatchBufferStart) Dwords() int    { return 2 + addressDwords }

func (c BatchBufferStart) encodeBody(w *writer) {
	var flags uint32
	if c.SecondLevel {
		flags |= BBSecondLevelMask
	}
	w.u32(flags)
	w.addr(c.Target, false)
}

func (c *BatchBufferStart) decodeBody(r *reader) error {
	flags := r.u32()
	c.SecondLevel = flags&BBSecondLevelMask != 0
	c.Target = r.addr()
	return nil
}

// BatchBufferEnd terminates the current batch buffer.
type BatchBufferEnd struct{}

func (BatchBufferEnd) Client() Client       { return ClientMI }
func (BatchBufferEnd) Opcode() Opcode       { return OpBatchBufferEnd }
func (BatchBufferEnd) Dwords() int          { return 2 }
func (BatchBufferEnd) encodeBody(w *writer) { w.u32(0) }

func (*BatchBufferEnd) decodeBody(r *reader) error {
	r.u32()
	return nil
}

// ConditionalBatchBufferEnd ends the current batch buffer when
// ((mem[Addr] & Mask) == Compare) equals EndIfEqual.
type ConditionalBatchBufferEnd struct {
	Addr       Address
	Mask       uint32
	Compare    uint32
	EndIfEqual bool
}

func (ConditionalBatchBufferEnd) Client() Client { return ClientMI }
func (ConditionalBatchBufferEnd) Opcode() Opcode { return OpConditionalBatchBufferEnd }
func (ConditionalBatchBufferEnd) Dwords() int    { return 4 + addressDwords }

func (c ConditionalBatchBufferEnd) encodeBody(w *writer) {
	var flags uint32
	if c.EndIfEqual {
		flags |= CondEndIfEqualMask
	}
	w.u32(flags)
	w.u32(c.Compare)
	w.u32(c.Mask)
	w.addr(c.Addr, false)
}

func (c *ConditionalBatchBufferEnd) decodeBody(r *reader) error {
	c.EndIfEqual = r.u32()&CondEndIfEqualMask != 0
	c.Compare = r.u32()
	c.Mask = r.u32()
	c.Addr = r.addr()
	return nil
}

// Ends reports whether the condition terminates the buffer for value.
func (c ConditionalBatchBufferEnd) Ends(value uint32) bool {
	return (value&c.Mask == c.Compare) == c.EndIfEqual
}

// StoreDataImm writes Value at Addr.
type StoreDataImm struct {
	Addr  Address
	Value uint32
}

func (StoreDataImm) Client() Client { return ClientMI }
func (StoreDataImm) Opcode() Opcode { return OpStoreDataImm }
func (StoreDataImm) Dwords() int    { return 2 + addressDwords }

func (c StoreDataImm) encodeBody(w *writer) {
	w.addr(c.Addr, true)
	w.u32(c.Value)
}

func (c *StoreDataImm) decodeBody(r *reader) error {
	c.Addr = r.addr()
	c.Value = r.u32()
	return nil
}

// StoreRegisterMem copies an engine register to Addr.
type StoreRegisterMem struct {
	Register Register
	Addr     Address
}

func (StoreRegisterMem) Client() Client { return ClientMI }
func (StoreRegisterMem) Opcode() Opcode { return OpStoreRegisterMem }
func (StoreRegisterMem) Dwords() int    { return 2 + addressDwords }

func (c StoreRegisterMem) encodeBody(w *writer) {
	w.u32(uint32(c.Register))
	w.addr(c.Addr, true)
}

func (c *StoreRegisterMem) decodeBody(r *reader) error {
	c.Register = Register(r.u32())
	c.Addr = r.addr()
	return nil
}

// LoadRegisterImm writes Value into an engine register.
type LoadRegisterImm struct {
	Register Register
	Value    uint32
}

func (LoadRegisterImm) Client() Client { return ClientMI }
func (LoadRegisterImm) Opcode() Opcode { return OpLoadRegisterImm }
func (LoadRegisterImm) Dwords() int    { return 3 }

func (c LoadRegisterImm) encodeBody(w *writer) {
	w.u32(uint32(c.Register))
	w.u32(c.Value)
}

func (c *LoadRegisterImm) decodeBody(r *reader) error {
	c.Register = Register(r.u32())
	c.Value = r.u32()
	return nil
}

// FlushDw drains the engine. With PostSync it also writes Value to Addr
// once prior work has retired.
type FlushDw struct {
	PostSync bool
	Addr     Address
	Value    uint32
}

func (FlushDw) Client() Client { return ClientMI }
func (FlushDw) Opcode() Opcode { return OpFlushDw }
func (FlushDw) Dwords() int    { return 3 + addressDwords }

func (c FlushDw) encodeBody(w *writer) {
	var flags uint32
	if c.PostSync {
		flags |= FlushPostSyncMask
	}
	w.u32(flags)
	w.addr(c.Addr, true)
	w.u32(c.Value)
}

func (c *FlushDw) decodeBody(r *reader) error {
	c.PostSync = r.u32()&FlushPostSyncMask != 0
	c.Addr = r.addr()
	c.Value = r.u32()
	return nil
}

// SemaphoreSignal writes Value to a sync-buffer slot.
type SemaphoreSignal struct {
	Addr  Address
	Value uint32
}

func (SemaphoreSignal) Client() Client { return ClientMI }
func (SemaphoreSignal) Opcode() Opcode { return OpSemaphoreSignal }
func (SemaphoreSignal) Dwords() int    { return 2 + addressDwords }

func (c SemaphoreSignal) encodeBody(w *writer) {
	w.addr(c.Addr, true)
	w.u32(c.Value)
}

func (c *SemaphoreSignal) decodeBody(r *reader) error {
	c.Addr = r.addr()
	c.Value = r.u32()
	return nil
}

// CompareOp selects the semaphore wait predicate.
type CompareOp uint32

const (
	CompareGreaterOrEqual CompareOp = 3
	CompareEqual          CompareOp = 4
)

// SemaphoreWait stalls the engine until mem[Addr] satisfies Op against Value.
type SemaphoreWait struct {
	Addr  Address
	Value uint32
	Op    CompareOp
}

func (SemaphoreWait) Client() Client { return ClientMI }
func (SemaphoreWait) Opcode() Opcode { return OpSemaphoreWait }
func (SemaphoreWait) Dwords() int    { return 3 + addressDwords }

func (c SemaphoreWait) encodeBody(w *writer) {
	w.u32(uint32(c.Op) << SemCompareShift & SemCompareMask)
	w.addr(c.Addr, false)
	w.u32(c.Value)
}

func (c *SemaphoreWait) decodeBody(r *reader) error {
	c.Op = CompareOp((r.u32() & SemCompareMask) >> SemCompareShift)
	c.Addr = r.addr()
	c.Value = r.u32()
	return nil
}

// Satisfied reports whether value releases the wait.
func (c SemaphoreWait) Satisfied(value uint32) bool {
	switch c.Op {
	case CompareEqual:
		return value == c.Value
	default:
		return value >= c.Value
	}
}
