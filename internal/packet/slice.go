package packet

import (
	"context"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/scalability"
)

// Slice emits slice headers and bitstream decode commands. Front-end and
// single-pipe stages decode every slice; a real tile pipe decodes the
// slices that start inside its tile column.
type Slice struct {
	deps Deps

	bitstream mos.Handle
	widthCTB  int
	slices    []codec.SliceParams
	colBounds []int
	plan      scalability.RealTilePlan
}

func NewSlice(d Deps) (*Slice, error) {
	if err := d.validate("slice packet"); err != nil {
		return nil, err
	}
	return &Slice{deps: d}, nil
}

func (s *Slice) Init(context.Context) error { return nil }

func (s *Slice) Prepare() error {
	basic, err := feature.Lookup[*feature.Basic](s.deps.Features, feature.TagBasic)
	if err != nil {
		return err
	}
	sl, err := feature.Lookup[*feature.Slice](s.deps.Features, feature.TagSlice)
	if err != nil {
		return err
	}
	tile, err := feature.Lookup[*feature.Tile](s.deps.Features, feature.TagTile)
	if err != nil {
		return err
	}
	sc, err := feature.Lookup[*feature.Scalability](s.deps.Features, feature.TagScalability)
	if err != nil {
		return err
	}

	s.bitstream = basic.Bitstream
	s.widthCTB = basic.WidthInCTBs
	s.slices = s.slices[:0]
	for i := 0; i < sl.Len(); i++ {
		p, err := sl.At(i)
		if err != nil {
			return err
		}
		s.slices = append(s.slices, p)
	}
	s.colBounds = s.colBounds[:0]
	for i := 0; i < tile.Columns(); i++ {
		start, _, err := tile.Column(i)
		if err != nil {
			return err
		}
		s.colBounds = append(s.colBounds, start)
	}
	s.plan = sc.Plan()
	return nil
}

func (s *Slice) CalculateCommandSize() int {
	return len(s.slices) * mhw.SizeOf(mhw.SliceState{}, mhw.BsdObject{})
}

// column returns the tile column holding CTB address addr.
func (s *Slice) column(addr int) int {
	if s.widthCTB == 0 {
		return 0
	}
	x := addr % s.widthCTB
	c := 0
	for i, start := range s.colBounds {
		if x >= start {
			c = i
		}
	}
	return c
}

func (s *Slice) Execute(cb *mos.CommandBuffer, t Target) error {
	var mine []codec.SliceParams
	switch t.Stage {
	case StageLong, StageFrontEnd:
		mine = s.slices
	case StageRealTile:
		col, ok := s.plan.Column(t.Pass, t.Pipe)
		if !ok {
			return errs.New(errs.CodeInvalidParameter, "slice packet", "pipe %d idles in pass %d", t.Pipe, t.Pass)
		}
		for _, sp := range s.slices {
			if s.column(sp.FirstCTB) == col {
				mine = append(mine, sp)
			}
		}
	default:
		return wrongStage(IDSlice, t)
	}

	cmds := make([]mhw.Command, 0, 2*len(mine))
	for i, sp := range mine {
		cmds = append(cmds,
			mhw.SliceState{FirstCTB: uint32(sp.FirstCTB), Type: uint32(sp.Type), Last: i == len(mine)-1},
			mhw.BsdObject{Bitstream: mhw.Address{Resource: s.bitstream, Offset: sp.Offset}, Size: sp.Size},
		)
	}
	return s.deps.Emitter.Emit(cb, cmds...)
}

func (s *Slice) Destroy() error { return nil }
