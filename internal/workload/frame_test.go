package workload

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/mos/sim"
)

// failAfter lets n allocations through and fails the rest.
type failAfter struct {
	mos.ResourceService
	n int
}

func (f *failAfter) Allocate(p mos.AllocParams) (mos.Handle, error) {
	if f.n == 0 {
		return 0, errs.New(errs.CodeNoSpace, "allocate", "%s", p.Name)
	}
	f.n--
	return f.ResourceService.Allocate(p)
}

func TestBuild_TiledFrame(t *testing.T) {
	dev := sim.New(sim.Options{VideoPipes: 2})
	req, rel, err := Build(dev, Spec{Codec: codec.HEVC, Frame: 4, Width: 3840, Height: 2160, TileColumns: 3, Refs: 2, DownSample: true})
	require.NoError(t, err)
	require.NoError(t, req.Validate())

	first := make([]int, 0, len(req.Slices))
	for _, s := range req.Slices {
		first = append(first, s.FirstCTB)
	}
	if diff := cmp.Diff([]int{0, 20, 40}, first); diff != "" {
		t.Errorf("slice starts (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint32(300), req.BitstreamSize)
	assert.Len(t, req.Refs.Surfaces, 2)
	require.NotNil(t, req.DownSample)
	assert.Equal(t, 1920, req.DownSample.Width)
	assert.Equal(t, 5, dev.LiveAllocations())

	require.NoError(t, rel.Release())
	assert.Zero(t, dev.LiveAllocations())
}

func TestBuild_FailureReleasesEverything(t *testing.T) {
	dev := sim.New(sim.Options{})
	_, rel, err := Build(&failAfter{ResourceService: dev, n: 2}, Spec{Frame: 1, Width: 1920, Height: 1080, Refs: 1})
	require.Error(t, err)
	assert.Nil(t, rel)
	assert.Equal(t, errs.CodeNoSpace, errs.CodeOf(err))
	assert.Zero(t, dev.LiveAllocations())
}
