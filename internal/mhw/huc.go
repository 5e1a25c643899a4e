package mhw

// HucImemState points the firmware engine at a kernel image.
type HucImemState struct {
	Kernel   Address
	KernelID uint32
}

func (HucImemState) Client() Client { return ClientVideo }
func (HucImemState) Opcode() Opcode { return OpHucImemState }
func (HucImemState) Dwords() int    { return 2 + addressDwords }

func (c HucImemState) encodeBody(w *writer) {
	w.u32(c.KernelID)
	w.addr(c.Kernel, false)
}

func (c *HucImemState) decodeBody(r *reader) error {
	c.KernelID = r.u32()
	c.Kernel = r.addr()
	return nil
}

// HucDmemState loads the kernel's data segment.
type HucDmemState struct {
	Data Address
	Size uint32
}

func (HucDmemState) Client() Client { return ClientVideo }
func (HucDmemState) Opcode() Opcode { return OpHucDmemState }
func (HucDmemState) Dwords() int    { return 2 + addressDwords }

func (c HucDmemState) encodeBody(w *writer) {
	w.addr(c.Data, false)
	w.u32(c.Size)
}

func (c *HucDmemState) decodeBody(r *reader) error {
	c.Data = r.addr()
	c.Size = r.u32()
	return nil
}

// HucStart runs the loaded kernel.
type HucStart struct {
	LastStream bool
}

func (HucStart) Client() Client { return ClientVideo }
func (HucStart) Opcode() Opcode { return OpHucStart }
func (HucStart) Dwords() int    { return 2 }

func (c HucStart) encodeBody(w *writer) { w.flag(c.LastStream) }

func (c *HucStart) decodeBody(r *reader) error {
	c.LastStream = r.flag()
	return nil
}

// SfcState programs the scaler on the post-processing engine.
type SfcState struct {
	Input        Address
	Output       Address
	InputWidth   uint32
	InputHeight  uint32
	OutputWidth  uint32
	OutputHeight uint32
}

func (SfcState) Client() Client { return ClientVideo }
func (SfcState) Opcode() Opcode { return OpSfcState }
func (SfcState) Dwords() int    { return 5 + 2*addressDwords }

func (c SfcState) encodeBody(w *writer) {
	w.addr(c.Input, false)
	w.addr(c.Output, true)
	w.u32(c.InputWidth)
	w.u32(c.InputHeight)
	w.u32(c.OutputWidth)
	w.u32(c.OutputHeight)
}

func (c *SfcState) decodeBody(r *reader) error {
	c.Input = r.addr()
	c.Output = r.addr()
	c.InputWidth = r.u32()
	c.InputHeight = r.u32()
	c.OutputWidth = r.u32()
	c.OutputHeight = r.u32()
	return nil
}

// SfcFrameStart kicks the scaler.
type SfcFrameStart struct{}

func (SfcFrameStart) Client() Client       { return ClientVideo }
func (SfcFrameStart) Opcode() Opcode       { return OpSfcFrameStart }
func (SfcFrameStart) Dwords() int          { return 2 }
func (SfcFrameStart) encodeBody(w *writer) { w.u32(0) }

func (*SfcFrameStart) decodeBody(r *reader) error {
	r.u32()
	return nil
}
