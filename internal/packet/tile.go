package packet

import (
	"context"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/feature"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/scalability"
)

type span struct{ start, end int }

// Tile restricts decoding to rectangles of CTBs: every tile for a single
// pipe, the pipe's virtual tile column on a back end, one tile column per
// pass in real tile mode.
type Tile struct {
	deps Deps

	heightCTB int
	cols      []span
	rows      []span
	vt        []scalability.Column
	plan      scalability.RealTilePlan
}

func NewTile(d Deps) (*Tile, error) {
	if err := d.validate("tile packet"); err != nil {
		return nil, err
	}
	return &Tile{deps: d}, nil
}

func (t *Tile) Init(context.Context) error { return nil }

func (t *Tile) Prepare() error {
	basic, err := feature.Lookup[*feature.Basic](t.deps.Features, feature.TagBasic)
	if err != nil {
		return err
	}
	tile, err := feature.Lookup[*feature.Tile](t.deps.Features, feature.TagTile)
	if err != nil {
		return err
	}
	sc, err := feature.Lookup[*feature.Scalability](t.deps.Features, feature.TagScalability)
	if err != nil {
		return err
	}

	t.heightCTB = basic.HeightInCTBs
	t.cols = t.cols[:0]
	for i := 0; i < tile.Columns(); i++ {
		s, e, err := tile.Column(i)
		if err != nil {
			return err
		}
		t.cols = append(t.cols, span{s, e})
	}
	t.rows = t.rows[:0]
	for i := 0; i < tile.Rows(); i++ {
		s, e, err := tile.Row(i)
		if err != nil {
			return err
		}
		t.rows = append(t.rows, span{s, e})
	}

	t.vt = t.vt[:0]
	if opt := sc.Option(); opt.Mode == scalability.ModeVirtualTile {
		for pipe := 0; pipe < opt.NumPipe; pipe++ {
			c, err := sc.Column(pipe)
			if err != nil {
				return err
			}
			t.vt = append(t.vt, c)
		}
	}
	t.plan = sc.Plan()
	return nil
}

func (t *Tile) CalculateCommandSize() int {
	return max(len(t.cols)*len(t.rows), 1) * mhw.SizeOf(mhw.TileCoding{})
}

func (t *Tile) coding(col, row int, lastInPipe bool) mhw.TileCoding {
	c, r := t.cols[col], t.rows[row]
	return mhw.TileCoding{
		Column:     uint32(col),
		Row:        uint32(row),
		FirstCol:   uint32(c.start),
		LastCol:    uint32(c.end - 1),
		FirstRow:   uint32(r.start),
		LastRow:    uint32(r.end - 1),
		LastInPipe: lastInPipe,
	}
}

func (t *Tile) Execute(cb *mos.CommandBuffer, tg Target) error {
	var cmds []mhw.Command
	switch tg.Stage {
	case StageLong:
		if len(t.cols)*len(t.rows) == 1 {
			return nil
		}
		for r := range t.rows {
			for c := range t.cols {
				last := r == len(t.rows)-1 && c == len(t.cols)-1
				cmds = append(cmds, t.coding(c, r, last))
			}
		}
	case StageFrontEnd:
		return nil
	case StageBackEnd:
		if tg.Pipe < 0 || tg.Pipe >= len(t.vt) {
			return errs.New(errs.CodeInvalidParameter, "tile packet", "pipe %d of %d", tg.Pipe, len(t.vt))
		}
		col := t.vt[tg.Pipe]
		cmds = append(cmds, mhw.TileCoding{
			Column:     uint32(tg.Pipe),
			FirstCol:   uint32(col.StartCTB),
			LastCol:    uint32(col.EndCTB - 1),
			LastRow:    uint32(t.heightCTB - 1),
			LastInPipe: true,
		})
	case StageRealTile:
		c, ok := t.plan.Column(tg.Pass, tg.Pipe)
		if !ok || c >= len(t.cols) {
			return errs.New(errs.CodeInvalidParameter, "tile packet", "pipe %d idles in pass %d", tg.Pipe, tg.Pass)
		}
		for r := range t.rows {
			cmds = append(cmds, t.coding(c, r, r == len(t.rows)-1))
		}
	default:
		return wrongStage(IDTile, tg)
	}
	return t.deps.Emitter.Emit(cb, cmds...)
}

func (t *Tile) Destroy() error { return nil }
