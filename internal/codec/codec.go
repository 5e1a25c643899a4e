// Package codec holds the per-frame request types handed to a pipeline.
package codec

import (
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mos"
)

// Codec identifies the bitstream standard.
type Codec int

const (
	HEVC Codec = iota
	AVC
	VP9
	AV1
)

func (c Codec) String() string {
	switch c {
	case HEVC:
		return "hevc"
	case AVC:
		return "avc"
	case VP9:
		return "vp9"
	case AV1:
		return "av1"
	default:
		return "unknown"
	}
}

// Function identifies what a pipeline does with the bitstream.
type Function int

const (
	Decode Function = iota
	Encode
	VideoProcess
)

func (f Function) String() string {
	switch f {
	case Decode:
		return "decode"
	case Encode:
		return "encode"
	case VideoProcess:
		return "vp"
	default:
		return "unknown"
	}
}

// Limits accepted by Validate.
const (
	MaxWidth       = 16384
	MaxHeight      = 16384
	MinCTBLog2     = 4
	MaxCTBLog2     = 6
	MaxRefs        = 16
	MaxTileColumns = 64
	MaxTileRows    = 64
)

// ChromaFormat is the sampling of the decoded picture.
type ChromaFormat int

const (
	Chroma420 ChromaFormat = iota
	Chroma422
	Chroma444
)

// PicParams are the picture-level parameters of one frame.
type PicParams struct {
	Width, Height int
	CTBLog2       int
	BitDepth      int
	Chroma        ChromaFormat

	TilesEnabled bool
	TileColumns  int
	TileRows     int
	// Explicit widths/heights in CTBs. Empty means uniform spacing.
	ColumnWidths []int
	RowHeights   []int

	// ShortFormat slices need the firmware to build long-format slice
	// parameters before the video engine can decode them.
	ShortFormat   bool
	ScreenContent bool
}

// CTBSize returns the coding tree block edge in pixels.
func (p PicParams) CTBSize() int { return 1 << p.CTBLog2 }

// WidthInCTBs returns the frame width rounded up to whole CTBs.
func (p PicParams) WidthInCTBs() int {
	s := p.CTBSize()
	return (p.Width + s - 1) / s
}

// HeightInCTBs returns the frame height rounded up to whole CTBs.
func (p PicParams) HeightInCTBs() int {
	s := p.CTBSize()
	return (p.Height + s - 1) / s
}

// Columns returns the tile column count, 1 when tiles are disabled.
func (p PicParams) Columns() int {
	if !p.TilesEnabled || p.TileColumns < 1 {
		return 1
	}
	return p.TileColumns
}

// Rows returns the tile row count, 1 when tiles are disabled.
func (p PicParams) Rows() int {
	if !p.TilesEnabled || p.TileRows < 1 {
		return 1
	}
	return p.TileRows
}

// SliceType follows the bitstream slice_type values.
type SliceType int

const (
	SliceB SliceType = iota
	SliceP
	SliceI
)

// SliceParams locate one slice inside the bitstream.
type SliceParams struct {
	Offset   uint32
	Size     uint32
	FirstCTB int
	Type     SliceType
}

// RefList lists reference surfaces. Current indexes the entry that holds
// the picture being decoded, -1 when none does.
type RefList struct {
	Surfaces []mos.Handle
	Current  int
}

// DownSampleParams request a scaled copy of the output on the
// post-processing engine.
type DownSampleParams struct {
	Output        mos.Handle
	Width, Height int
}

// FrameRequest is one unit of work handed to a pipeline.
type FrameRequest struct {
	Codec     Codec
	Frame     uint64
	Bitstream mos.Handle
	// BitstreamSize is the number of valid bytes in Bitstream.
	BitstreamSize uint32
	Dest          mos.Handle

	Pic    PicParams
	Slices []SliceParams
	Refs   RefList

	DownSample *DownSampleParams

	// DisableScalability forces single pipe for this frame only.
	DisableScalability bool
}

// Validate rejects null handles and out-of-range parameters.
func (r *FrameRequest) Validate() error {
	const op = "validate"
	if r == nil {
		return errs.New(errs.CodeInvalidParameter, op, "nil frame request")
	}
	if !r.Bitstream.Valid() || r.BitstreamSize == 0 {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: missing bitstream", r.Frame)
	}
	if !r.Dest.Valid() {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: missing destination surface", r.Frame)
	}

	p := r.Pic
	if p.Width <= 0 || p.Height <= 0 || p.Width > MaxWidth || p.Height > MaxHeight {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: resolution %dx%d out of range", r.Frame, p.Width, p.Height)
	}
	if p.CTBLog2 < MinCTBLog2 || p.CTBLog2 > MaxCTBLog2 {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: ctb log2 %d out of range", r.Frame, p.CTBLog2)
	}
	switch p.BitDepth {
	case 8, 10, 12:
	default:
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: bit depth %d", r.Frame, p.BitDepth)
	}
	if p.TilesEnabled {
		if err := validateTiles(r.Frame, p); err != nil {
			return err
		}
	}

	if len(r.Slices) == 0 {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: no slices", r.Frame)
	}
	totalCTBs := p.WidthInCTBs() * p.HeightInCTBs()
	for i, s := range r.Slices {
		if s.Size == 0 || uint64(s.Offset)+uint64(s.Size) > uint64(r.BitstreamSize) {
			return errs.New(errs.CodeInvalidParameter, op, "frame %d: slice %d outside bitstream", r.Frame, i)
		}
		if s.FirstCTB < 0 || s.FirstCTB >= totalCTBs {
			return errs.New(errs.CodeInvalidParameter, op, "frame %d: slice %d first ctb %d out of range", r.Frame, i, s.FirstCTB)
		}
	}

	if len(r.Refs.Surfaces) > MaxRefs {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: %d references exceed %d", r.Frame, len(r.Refs.Surfaces), MaxRefs)
	}

	if d := r.DownSample; d != nil {
		if !d.Output.Valid() || d.Width <= 0 || d.Height <= 0 || d.Width > p.Width || d.Height > p.Height {
			return errs.New(errs.CodeInvalidParameter, op, "frame %d: invalid down-sampling target", r.Frame)
		}
	}
	return nil
}

func validateTiles(frame uint64, p PicParams) error {
	const op = "validate"
	if p.TileColumns < 1 || p.TileRows < 1 || p.TileColumns > MaxTileColumns || p.TileRows > MaxTileRows {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: tile grid %dx%d out of range", frame, p.TileColumns, p.TileRows)
	}
	if p.TileColumns > p.WidthInCTBs() || p.TileRows > p.HeightInCTBs() {
		return errs.New(errs.CodeInvalidParameter, op, "frame %d: more tiles than ctbs", frame)
	}
	if err := checkSpans(frame, "column", p.ColumnWidths, p.TileColumns, p.WidthInCTBs()); err != nil {
		return err
	}
	return checkSpans(frame, "row", p.RowHeights, p.TileRows, p.HeightInCTBs())
}

func checkSpans(frame uint64, what string, spans []int, count, total int) error {
	if len(spans) == 0 {
		return nil
	}
	if len(spans) != count {
		return errs.New(errs.CodeInvalidParameter, "validate", "frame %d: %d tile %s sizes for %d tiles", frame, len(spans), what, count)
	}
	sum := 0
	for _, s := range spans {
		if s <= 0 {
			return errs.New(errs.CodeInvalidParameter, "validate", "frame %d: empty tile %s", frame, what)
		}
		sum += s
	}
	if sum != total {
		return errs.New(errs.CodeInvalidParameter, "validate", "frame %d: tile %s sizes sum to %d, want %d", frame, what, sum, total)
	}
	return nil
}
