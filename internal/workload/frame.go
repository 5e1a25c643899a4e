// Package workload builds synthetic decode requests for the simulated
// device.
package workload

import (
	"fmt"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/mos"
)

// Spec describes a synthetic frame.
type Spec struct {
	Codec  codec.Codec
	Frame  uint64
	Width  int
	Height int
	// CTBLog2 defaults to 6.
	CTBLog2     int
	TileColumns int
	TileRows    int
	// Slices defaults to one slice per tile column.
	Slices int
	// SliceBytes defaults to 100.
	SliceBytes uint32
	Refs       int

	ShortFormat   bool
	ScreenContent bool
	DownSample    bool
}

// Build allocates the surfaces of spec on rs and returns the request with
// an armed releaser owning them. On error nothing stays allocated.
func Build(rs mos.ResourceService, spec Spec) (*codec.FrameRequest, *mos.Releaser, error) {
	if spec.CTBLog2 == 0 {
		spec.CTBLog2 = 6
	}
	if spec.SliceBytes == 0 {
		spec.SliceBytes = 100
	}
	n := spec.Slices
	if n == 0 {
		n = max(spec.TileColumns, 1)
	}

	pic := codec.PicParams{
		Width:         spec.Width,
		Height:        spec.Height,
		CTBLog2:       spec.CTBLog2,
		BitDepth:      8,
		Chroma:        codec.Chroma420,
		TilesEnabled:  spec.TileColumns > 1 || spec.TileRows > 1,
		TileColumns:   max(spec.TileColumns, 1),
		TileRows:      max(spec.TileRows, 1),
		ShortFormat:   spec.ShortFormat,
		ScreenContent: spec.ScreenContent,
	}
	total := pic.WidthInCTBs() * pic.HeightInCTBs()

	rel := mos.NewReleaser(rs)
	alloc := func(name string, size int, kind mos.ResourceKind) (mos.Handle, error) {
		h, err := rel.Allocate(mos.AllocParams{Name: name, Size: size, Kind: kind})
		if err != nil {
			return 0, fmt.Errorf("allocate %s: %w", name, err)
		}
		return h, nil
	}
	fail := func(err error) (*codec.FrameRequest, *mos.Releaser, error) {
		_ = rel.Release()
		return nil, nil, err
	}

	bs, err := alloc(fmt.Sprintf("bitstream-%d", spec.Frame), int(spec.SliceBytes)*n, mos.KindBuffer)
	if err != nil {
		return fail(err)
	}
	dest, err := alloc(fmt.Sprintf("dest-%d", spec.Frame), 4096, mos.KindSurface)
	if err != nil {
		return fail(err)
	}
	req := &codec.FrameRequest{
		Codec:         spec.Codec,
		Frame:         spec.Frame,
		Bitstream:     bs,
		BitstreamSize: spec.SliceBytes * uint32(n),
		Dest:          dest,
		Pic:           pic,
		Refs:          codec.RefList{Current: -1},
	}
	for i := 0; i < n; i++ {
		req.Slices = append(req.Slices, codec.SliceParams{
			Offset:   uint32(i) * spec.SliceBytes,
			Size:     spec.SliceBytes,
			FirstCTB: firstCTB(pic, i, n, total),
		})
	}
	for i := 0; i < spec.Refs; i++ {
		h, err := alloc(fmt.Sprintf("ref-%d-%d", spec.Frame, i), 4096, mos.KindSurface)
		if err != nil {
			return fail(err)
		}
		req.Refs.Surfaces = append(req.Refs.Surfaces, h)
	}
	if spec.DownSample {
		out, err := alloc(fmt.Sprintf("scaled-%d", spec.Frame), 4096, mos.KindSurface)
		if err != nil {
			return fail(err)
		}
		req.DownSample = &codec.DownSampleParams{Output: out, Width: spec.Width / 2, Height: spec.Height / 2}
	}
	return req, rel, nil
}

// firstCTB spreads slices across the frame. With one slice per tile
// column each slice starts at the top of its column.
func firstCTB(pic codec.PicParams, i, n, total int) int {
	cols := pic.Columns()
	if cols > 1 && n == cols {
		return i * pic.WidthInCTBs() / cols
	}
	return i * total / n
}
