package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mos"
)

func validRequest() FrameRequest {
	return FrameRequest{
		Codec:         HEVC,
		Frame:         1,
		Bitstream:     1,
		BitstreamSize: 4096,
		Dest:          2,
		Pic: PicParams{
			Width: 1920, Height: 1080, CTBLog2: 6, BitDepth: 8,
		},
		Slices: []SliceParams{{Offset: 0, Size: 4096, Type: SliceI}},
		Refs:   RefList{Current: -1},
	}
}

func TestPicParams_Geometry(t *testing.T) {
	t.Parallel()

	p := PicParams{Width: 1920, Height: 1080, CTBLog2: 6}
	assert.Equal(t, 64, p.CTBSize())
	assert.Equal(t, 30, p.WidthInCTBs())
	assert.Equal(t, 17, p.HeightInCTBs())
	assert.Equal(t, 1, p.Columns())

	p.TilesEnabled, p.TileColumns, p.TileRows = true, 4, 2
	assert.Equal(t, 4, p.Columns())
	assert.Equal(t, 2, p.Rows())
}

func TestFrameRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*FrameRequest)
		ok     bool
	}{
		{name: "valid", mutate: func(*FrameRequest) {}, ok: true},
		{name: "no bitstream", mutate: func(r *FrameRequest) { r.Bitstream = 0 }},
		{name: "empty bitstream", mutate: func(r *FrameRequest) { r.BitstreamSize = 0 }},
		{name: "no dest", mutate: func(r *FrameRequest) { r.Dest = 0 }},
		{name: "zero width", mutate: func(r *FrameRequest) { r.Pic.Width = 0 }},
		{name: "huge height", mutate: func(r *FrameRequest) { r.Pic.Height = MaxHeight + 1 }},
		{name: "ctb too small", mutate: func(r *FrameRequest) { r.Pic.CTBLog2 = 3 }},
		{name: "bit depth 9", mutate: func(r *FrameRequest) { r.Pic.BitDepth = 9 }},
		{name: "no slices", mutate: func(r *FrameRequest) { r.Slices = nil }},
		{name: "slice past bitstream", mutate: func(r *FrameRequest) { r.Slices[0].Offset = 1 }},
		{name: "slice ctb out of range", mutate: func(r *FrameRequest) { r.Slices[0].FirstCTB = 30 * 17 }},
		{name: "too many refs", mutate: func(r *FrameRequest) { r.Refs.Surfaces = make([]mos.Handle, MaxRefs+1) }},
		{name: "tiles valid", mutate: func(r *FrameRequest) {
			r.Pic.TilesEnabled, r.Pic.TileColumns, r.Pic.TileRows = true, 2, 1
		}, ok: true},
		{name: "tiles zero rows", mutate: func(r *FrameRequest) {
			r.Pic.TilesEnabled, r.Pic.TileColumns, r.Pic.TileRows = true, 2, 0
		}},
		{name: "explicit widths mismatch", mutate: func(r *FrameRequest) {
			r.Pic.TilesEnabled, r.Pic.TileColumns, r.Pic.TileRows = true, 2, 1
			r.Pic.ColumnWidths = []int{10, 10}
		}},
		{name: "explicit widths valid", mutate: func(r *FrameRequest) {
			r.Pic.TilesEnabled, r.Pic.TileColumns, r.Pic.TileRows = true, 2, 1
			r.Pic.ColumnWidths = []int{10, 20}
		}, ok: true},
		{name: "down-sample larger than frame", mutate: func(r *FrameRequest) {
			r.DownSample = &DownSampleParams{Output: 3, Width: 3840, Height: 2160}
		}},
		{name: "down-sample valid", mutate: func(r *FrameRequest) {
			r.DownSample = &DownSampleParams{Output: 3, Width: 960, Height: 540}
		}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := validRequest()
			tt.mutate(&r)
			err := r.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrInvalidParameter)
		})
	}
}

func TestFrameRequest_ValidateNil(t *testing.T) {
	t.Parallel()
	var r *FrameRequest
	assert.ErrorIs(t, r.Validate(), errs.ErrInvalidParameter)
}
