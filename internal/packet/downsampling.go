package packet

import (
	"context"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

// DownSampling scales the decoded picture into a second surface on the
// post-processing engine.
type DownSampling struct {
	deps Deps

	enabled bool
	src     mos.Handle
	srcW    int
	srcH    int
	params  codec.DownSampleParams
}

func NewDownSampling(d Deps) (*DownSampling, error) {
	if err := d.validate("down sampling packet"); err != nil {
		return nil, err
	}
	return &DownSampling{deps: d}, nil
}

func (d *DownSampling) Init(context.Context) error { return nil }

func (d *DownSampling) Prepare() error {
	basic, err := feature.Lookup[*feature.Basic](d.deps.Features, feature.TagBasic)
	if err != nil {
		return err
	}
	ds, err := feature.Lookup[*feature.DownSampling](d.deps.Features, feature.TagDownSampling)
	if err != nil {
		return err
	}
	d.enabled = ds.Enabled()
	d.params = ds.Params()
	d.src, d.srcW, d.srcH = basic.Dest, basic.Pic.Width, basic.Pic.Height
	return nil
}

// Enabled reports whether the prepared frame is down-sampled.
func (d *DownSampling) Enabled() bool { return d.enabled }

func (d *DownSampling) CalculateCommandSize() int {
	return mhw.SizeOf(mhw.SfcState{}, mhw.SfcFrameStart{})
}

func (d *DownSampling) Execute(cb *mos.CommandBuffer, t Target) error {
	if t.Stage != StagePostProcess {
		return wrongStage(IDDownSampling, t)
	}
	if !d.enabled {
		return errs.New(errs.CodeInvalidParameter, "down sampling packet", "frame has no down-sampling request")
	}
	return d.deps.Emitter.Emit(cb,
		mhw.SfcState{
			Input:        mhw.Address{Resource: d.src},
			Output:       mhw.Address{Resource: d.params.Output},
			InputWidth:   uint32(d.srcW),
			InputHeight:  uint32(d.srcH),
			OutputWidth:  uint32(d.params.Width),
			OutputHeight: uint32(d.params.Height),
		},
		mhw.SfcFrameStart{},
	)
}

func (d *DownSampling) Destroy() error { return nil }
