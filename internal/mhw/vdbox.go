package mhw

// Video client opcodes.
const (
	OpPipeModeSelect Opcode = 0x0100
	OpSurfaceState   Opcode = 0x0101
	OpPictureState   Opcode = 0x0110
	OpTileCoding     Opcode = 0x0115
	OpSliceState     Opcode = 0x0114
	OpBsdObject      Opcode = 0x0120
	OpPipelineFlush  Opcode = 0x0150
	OpHucImemState   Opcode = 0x0B01
	OpHucDmemState   Opcode = 0x0B02
	OpHucStart       Opcode = 0x0B21
	OpSfcState       Opcode = 0x0A01
	OpSfcFrameStart  Opcode = 0x0A04
)

// PipeModeSelect dword layout.
const (
	PipeCodecShift = 0
	PipeCodecMask  = uint32(0xF) << PipeCodecShift
	PipeModeShift  = 4
	PipeModeMask   = uint32(0xF) << PipeModeShift
	PipeIndexShift = 8
	PipeIndexMask  = uint32(0xFF) << PipeIndexShift
	PipeCountShift = 16
	PipeCountMask  = uint32(0xFF) << PipeCountShift
)

// PipeMode is the scalability role programmed into the video engine.
type PipeMode uint32

const (
	PipeModeLong PipeMode = iota
	PipeModeFrontEnd
	PipeModeBackEnd
	PipeModeRealTile
)

// PipeModeSelect programs codec and scalability role of the video engine.
type PipeModeSelect struct {
	Codec    uint32
	Mode     PipeMode
	Pipe     uint32
	NumPipes uint32
}

func (PipeModeSelect) Client() Client { return ClientVideo }
func (PipeModeSelect) Opcode() Opcode { return OpPipeModeSelect }
func (PipeModeSelect) Dwords() int    { return 2 }

func (c PipeModeSelect) encodeBody(w *writer) {
	w.u32(c.Codec<<PipeCodecShift&PipeCodecMask |
		uint32(c.Mode)<<PipeModeShift&PipeModeMask |
		c.Pipe<<PipeIndexShift&PipeIndexMask |
		c.NumPipes<<PipeCountShift&PipeCountMask)
}

func (c *PipeModeSelect) decodeBody(r *reader) error {
	v := r.u32()
	c.Codec = (v & PipeCodecMask) >> PipeCodecShift
	c.Mode = PipeMode((v & PipeModeMask) >> PipeModeShift)
	c.Pipe = (v & PipeIndexMask) >> PipeIndexShift
	c.NumPipes = (v & PipeCountMask) >> PipeCountShift
	return nil
}

// SurfaceID names the surface slot programmed by SurfaceState.
type SurfaceID uint32

const (
	SurfaceDest SurfaceID = iota
	SurfaceRef
	SurfaceDownSampled
	// SurfaceRowStore is per-pipe scratch for one CTB row.
	SurfaceRowStore
)

// SurfaceState programs one surface.
type SurfaceState struct {
	ID      SurfaceID
	Surface Address
	Width   uint32
	Height  uint32
}

func (SurfaceState) Client() Client { return ClientVideo }
func (SurfaceState) Opcode() Opcode { return OpSurfaceState }
func (SurfaceState) Dwords() int    { return 4 + addressDwords }

func (c SurfaceState) encodeBody(w *writer) {
	w.u32(uint32(c.ID))
	w.addr(c.Surface, c.ID != SurfaceRef)
	w.u32(c.Width)
	w.u32(c.Height)
}

func (c *SurfaceState) decodeBody(r *reader) error {
	c.ID = SurfaceID(r.u32())
	c.Surface = r.addr()
	c.Width = r.u32()
	c.Height = r.u32()
	return nil
}

// PictureState carries frame-level parameters. Padding reserved dwords
// follow the body on generations that define them.
type PictureState struct {
	WidthInCTBs  uint32
	HeightInCTBs uint32
	CTBLog2      uint32
	BitDepth     uint32
	TileColumns  uint32
	TileRows     uint32
	Padding      int
}

func (PictureState) Client() Client { return ClientVideo }
func (PictureState) Opcode() Opcode { return OpPictureState }
func (c PictureState) Dwords() int  { return 8 + c.Padding }

func (c PictureState) encodeBody(w *writer) {
	w.u32(c.WidthInCTBs)
	w.u32(c.HeightInCTBs)
	w.u32(c.CTBLog2)
	w.u32(c.BitDepth)
	w.u32(c.TileColumns)
	w.u32(c.TileRows)
	w.u32(uint32(c.Padding))
	for i := 0; i < c.Padding; i++ {
		w.u32(0)
	}
}

func (c *PictureState) decodeBody(r *reader) error {
	c.WidthInCTBs = r.u32()
	c.HeightInCTBs = r.u32()
	c.CTBLog2 = r.u32()
	c.BitDepth = r.u32()
	c.TileColumns = r.u32()
	c.TileRows = r.u32()
	c.Padding = int(r.u32())
	for i := 0; i < c.Padding; i++ {
		r.u32()
	}
	return nil
}

// TileCoding restricts the back end to a rectangle of CTBs.
type TileCoding struct {
	Column     uint32
	Row        uint32
	FirstCol   uint32 // CTB column, inclusive
	LastCol    uint32 // CTB column, inclusive
	FirstRow   uint32
	LastRow    uint32
	LastInPipe bool
}

func (TileCoding) Client() Client { return ClientVideo }
func (TileCoding) Opcode() Opcode { return OpTileCoding }
func (TileCoding) Dwords() int    { return 8 }

func (c TileCoding) encodeBody(w *writer) {
	w.u32(c.Column)
	w.u32(c.Row)
	w.u32(c.FirstCol)
	w.u32(c.LastCol)
	w.u32(c.FirstRow)
	w.u32(c.LastRow)
	w.flag(c.LastInPipe)
}

func (c *TileCoding) decodeBody(r *reader) error {
	c.Column = r.u32()
	c.Row = r.u32()
	c.FirstCol = r.u32()
	c.LastCol = r.u32()
	c.FirstRow = r.u32()
	c.LastRow = r.u32()
	c.LastInPipe = r.flag()
	return nil
}

// SliceState programs one slice header.
type SliceState struct {
	FirstCTB uint32
	Type     uint32
	Last     bool
}

func (SliceState) Client() Client { return ClientVideo }
func (SliceState) Opcode() Opcode { return OpSliceState }
func (SliceState) Dwords() int    { return 4 }

func (c SliceState) encodeBody(w *writer) {
	w.u32(c.FirstCTB)
	w.u32(c.Type)
	w.flag(c.Last)
}

func (c *SliceState) decodeBody(r *reader) error {
	c.FirstCTB = r.u32()
	c.Type = r.u32()
	c.Last = r.flag()
	return nil
}

// BsdObject starts decoding Size bytes of the bitstream.
type BsdObject struct {
	Bitstream Address
	Size      uint32
}

func (BsdObject) Client() Client { return ClientVideo }
func (BsdObject) Opcode() Opcode { return OpBsdObject }
func (BsdObject) Dwords() int    { return 2 + addressDwords }

func (c BsdObject) encodeBody(w *writer) {
	w.addr(c.Bitstream, false)
	w.u32(c.Size)
}

func (c *BsdObject) decodeBody(r *reader) error {
	c.Bitstream = r.addr()
	c.Size = r.u32()
	return nil
}

// PipelineFlush waits for the video pipeline to drain.
type PipelineFlush struct {
	HevcDone bool
}

func (PipelineFlush) Client() Client { return ClientVideo }
func (PipelineFlush) Opcode() Opcode { return OpPipelineFlush }
func (PipelineFlush) Dwords() int    { return 2 }

func (c PipelineFlush) encodeBody(w *writer) { w.flag(c.HevcDone) }

func (c *PipelineFlush) decodeBody(r *reader) error {
	c.HevcDone = r.flag()
	return nil
}
