// Package testutil builds simulated devices and synthetic frames for
// tests across packages.
package testutil

import (
	"testing"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/mos/sim"
	"github.com/ManuGH/mediahal/internal/workload"
)

// FrameSpec describes a synthetic frame.
type FrameSpec = workload.Spec

// Device returns a simulated device. opts, if given, adjust the options
// before creation.
func Device(gen string, pipes int, opts ...func(*sim.Options)) *sim.Device {
	o := sim.Options{Generation: gen, VideoPipes: pipes}
	for _, fn := range opts {
		fn(&o)
	}
	return sim.New(o)
}

// Frame allocates the surfaces of spec on rs and returns the request.
// The surfaces are freed when the test ends.
func Frame(t testing.TB, rs mos.ResourceService, spec FrameSpec) *codec.FrameRequest {
	t.Helper()
	req, rel, err := workload.Build(rs, spec)
	if err != nil {
		t.Fatalf("build frame %d: %v", spec.Frame, err)
	}
	t.Cleanup(func() { _ = rel.Release() })
	return req
}
