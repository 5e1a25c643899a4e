package feature

import (
	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/scalability"
)

// Basic carries picture parameters and the frame's surfaces.
type Basic struct {
	codec codec.Codec

	Frame              uint64
	Pic                codec.PicParams
	Bitstream          mos.Handle
	BitstreamSize      uint32
	Dest               mos.Handle
	WidthInCTBs        int
	HeightInCTBs       int
	DisableScalability bool
}

// NewBasic returns the basic feature of a pipeline decoding c.
func NewBasic(c codec.Codec) *Basic { return &Basic{codec: c} }

// Codec returns the codec the pipeline was built for.
func (b *Basic) Codec() codec.Codec { return b.codec }

func (b *Basic) Update(req *codec.FrameRequest) error {
	if req.Codec != b.codec {
		return errs.New(errs.CodeInvalidParameter, "basic feature", "frame %d is %s, pipeline decodes %s", req.Frame, req.Codec, b.codec)
	}
	if !req.Dest.Valid() || !req.Bitstream.Valid() {
		return errs.New(errs.CodeInvalidParameter, "basic feature", "frame %d: null surface", req.Frame)
	}
	b.Frame = req.Frame
	b.Pic = req.Pic
	b.Bitstream = req.Bitstream
	b.BitstreamSize = req.BitstreamSize
	b.Dest = req.Dest
	b.WidthInCTBs = req.Pic.WidthInCTBs()
	b.HeightInCTBs = req.Pic.HeightInCTBs()
	b.DisableScalability = req.DisableScalability
	return nil
}

// Tile holds tile boundaries in CTB units. Boundaries have one more entry
// than tiles; tile i spans [bd[i], bd[i+1]).
type Tile struct {
	colBd []int
	rowBd []int
}

func NewTile() *Tile { return &Tile{} }

func (t *Tile) Update(req *codec.FrameRequest) error {
	p := req.Pic
	t.colBd = bounds(t.colBd[:0], p.Columns(), p.WidthInCTBs(), p.ColumnWidths)
	t.rowBd = bounds(t.rowBd[:0], p.Rows(), p.HeightInCTBs(), p.RowHeights)
	return nil
}

// bounds uses explicit spans when present and uniform spacing otherwise.
func bounds(dst []int, n, total int, spans []int) []int {
	dst = append(dst, 0)
	for i := 1; i <= n; i++ {
		if len(spans) == n {
			dst = append(dst, dst[i-1]+spans[i-1])
			continue
		}
		dst = append(dst, i*total/n)
	}
	return dst
}

func (t *Tile) Columns() int { return len(t.colBd) - 1 }
func (t *Tile) Rows() int    { return len(t.rowBd) - 1 }

// Column returns the CTB span of tile column i.
func (t *Tile) Column(i int) (start, end int, err error) {
	if i < 0 || i >= t.Columns() {
		return 0, 0, errs.New(errs.CodeInvalidParameter, "tile column", "%d of %d", i, t.Columns())
	}
	return t.colBd[i], t.colBd[i+1], nil
}

// Row returns the CTB span of tile row i.
func (t *Tile) Row(i int) (start, end int, err error) {
	if i < 0 || i >= t.Rows() {
		return 0, 0, errs.New(errs.CodeInvalidParameter, "tile row", "%d of %d", i, t.Rows())
	}
	return t.rowBd[i], t.rowBd[i+1], nil
}

// Slice holds the frame's slices.
type Slice struct {
	slices []codec.SliceParams
}

func NewSlice() *Slice { return &Slice{} }

func (s *Slice) Update(req *codec.FrameRequest) error {
	if len(req.Slices) == 0 {
		return errs.New(errs.CodeInvalidParameter, "slice feature", "frame %d has no slices", req.Frame)
	}
	s.slices = append(s.slices[:0], req.Slices...)
	return nil
}

func (s *Slice) Len() int { return len(s.slices) }

// At returns slice i.
func (s *Slice) At(i int) (codec.SliceParams, error) {
	if i < 0 || i >= len(s.slices) {
		return codec.SliceParams{}, errs.New(errs.CodeInvalidParameter, "slice", "%d of %d", i, len(s.slices))
	}
	return s.slices[i], nil
}

// RefList holds reference surfaces in a fixed-size table.
type RefList struct {
	surfaces [codec.MaxRefs]mos.Handle
	n        int
	current  int
}

func NewRefList() *RefList { return &RefList{current: -1} }

func (r *RefList) Update(req *codec.FrameRequest) error {
	refs := req.Refs
	if len(refs.Surfaces) > codec.MaxRefs {
		return errs.New(errs.CodeInvalidParameter, "ref list", "frame %d: %d references", req.Frame, len(refs.Surfaces))
	}
	if refs.Current < -1 || refs.Current >= len(refs.Surfaces) {
		return errs.New(errs.CodeInvalidParameter, "ref list", "frame %d: current index %d of %d", req.Frame, refs.Current, len(refs.Surfaces))
	}
	r.n = copy(r.surfaces[:], refs.Surfaces)
	for i := r.n; i < len(r.surfaces); i++ {
		r.surfaces[i] = 0
	}
	r.current = refs.Current
	return nil
}

func (r *RefList) Len() int { return r.n }

// Current returns the index of the picture being decoded, -1 if none.
func (r *RefList) Current() int { return r.current }

// Ref returns reference i.
func (r *RefList) Ref(i int) (mos.Handle, error) {
	if i < 0 || i >= r.n {
		return 0, errs.New(errs.CodeInvalidParameter, "ref list", "index %d of %d", i, r.n)
	}
	return r.surfaces[i], nil
}

// DownSampling records whether the frame gets a scaled copy.
type DownSampling struct {
	enabled bool
	params  codec.DownSampleParams
}

func NewDownSampling() *DownSampling { return &DownSampling{} }

func (d *DownSampling) Update(req *codec.FrameRequest) error {
	if req.DownSample == nil {
		d.enabled = false
		d.params = codec.DownSampleParams{}
		return nil
	}
	d.enabled = true
	d.params = *req.DownSample
	return nil
}

func (d *DownSampling) Enabled() bool                  { return d.enabled }
func (d *DownSampling) Params() codec.DownSampleParams { return d.params }

// Firmware decides whether the frame needs the firmware stage.
type Firmware struct {
	traits    mhw.Traits
	needed    bool
	authCheck bool
}

func NewFirmware(t mhw.Traits) *Firmware { return &Firmware{traits: t} }

func (f *Firmware) Update(req *codec.FrameRequest) error {
	f.needed = req.Pic.ShortFormat
	f.authCheck = f.needed && f.traits.AuthCheckRequired
	return nil
}

// Needed reports whether short-format slices must be converted by the
// firmware before decoding.
func (f *Firmware) Needed() bool { return f.needed }

// AuthCheck reports whether the firmware payload is guarded by the
// authentication loop.
func (f *Firmware) AuthCheck() bool { return f.authCheck }

// Scalability exposes the frame's multi-pipe decision to packets. The
// orchestrator sets it after deciding; Update leaves it alone.
type Scalability struct {
	decision scalability.Decision
	reused   bool
	columns  []scalability.Column
	plan     scalability.RealTilePlan
}

func NewScalability() *Scalability { return &Scalability{} }

func (s *Scalability) Update(*codec.FrameRequest) error { return nil }

// Set stores the decision, its virtual tile columns and its real tile plan.
func (s *Scalability) Set(d scalability.Decision, reused bool, cols []scalability.Column, plan scalability.RealTilePlan) {
	s.decision = d
	s.reused = reused
	s.columns = append(s.columns[:0], cols...)
	s.plan = plan
}

func (s *Scalability) Option() scalability.Option     { return s.decision.Option }
func (s *Scalability) Reason() scalability.Reason     { return s.decision.Reason }
func (s *Scalability) Reused() bool                   { return s.reused }
func (s *Scalability) Plan() scalability.RealTilePlan { return s.plan }

// Column returns the virtual tile column of pipe.
func (s *Scalability) Column(pipe int) (scalability.Column, error) {
	if pipe < 0 || pipe >= len(s.columns) {
		return scalability.Column{}, errs.New(errs.CodeInvalidParameter, "scalability column", "pipe %d of %d", pipe, len(s.columns))
	}
	return s.columns[pipe], nil
}

// Status exposes the status ring slot the frame reserved. A slot is handed
// out again only after its previous frame retired and was consumed, so
// per-frame buffers indexed by it are never rewritten while in flight.
type Status struct {
	depth int
	slot  int
}

func NewStatus(depth int) *Status { return &Status{depth: depth, slot: -1} }

func (s *Status) Update(*codec.FrameRequest) error { return nil }

// Set records the slot of the frame being built.
func (s *Status) Set(slot int) { s.slot = slot }

func (s *Status) Depth() int { return s.depth }

// Slot returns the current frame's slot, -1 before the first frame.
func (s *Status) Slot() int { return s.slot }
