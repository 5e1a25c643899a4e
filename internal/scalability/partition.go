package scalability

import (
	"github.com/ManuGH/mediahal/internal/errs"
)

// Column is the share of the frame one pipe decodes. CTB bounds are
// half-open; pixel bounds are clamped to the frame edge.
type Column struct {
	Pipe             int
	StartCTB, EndCTB int
	StartPx, EndPx   int
}

// Partition splits a frame of widthPx pixels between the pipes of opt.
// Pipes get equal CTB counts and the last pipe absorbs the remainder.
// Modes other than virtual tile yield one column covering the frame.
func Partition(opt Option, widthPx, ctbLog2 int) ([]Column, error) {
	if widthPx <= 0 {
		return nil, errs.New(errs.CodeInvalidParameter, "partition", "width %d", widthPx)
	}
	if ctbLog2 <= 0 {
		ctbLog2 = defaultCTBLog2
	}
	ctb := 1 << ctbLog2
	total := (widthPx + ctb - 1) / ctb

	n := 1
	if opt.Mode == ModeVirtualTile {
		n = opt.NumPipe
	}
	if n < 1 {
		return nil, errs.New(errs.CodeInvalidParameter, "partition", "%d pipes", n)
	}
	per := total / n
	if per == 0 {
		return nil, errs.New(errs.CodeInvalidParameter, "partition", "%d ctb columns cannot feed %d pipes", total, n)
	}

	out := make([]Column, n)
	for i := range out {
		start := i * per
		end := start + per
		if i == n-1 {
			end = total
		}
		out[i] = Column{
			Pipe:     i,
			StartCTB: start,
			EndCTB:   end,
			StartPx:  start * ctb,
			EndPx:    min(end*ctb, widthPx),
		}
	}
	return out, nil
}

// RealTilePlan schedules tile columns onto pipes over one or more passes.
type RealTilePlan struct {
	NumPipe int
	Columns int
	Passes  int
}

// PlanRealTile builds the pass schedule for cols tile columns.
func PlanRealTile(opt Option, cols int) (RealTilePlan, error) {
	if opt.Mode != ModeRealTile {
		return RealTilePlan{}, errs.New(errs.CodeInvalidParameter, "real tile plan", "mode %s", opt.Mode)
	}
	if opt.NumPipe < 1 || cols < 1 {
		return RealTilePlan{}, errs.New(errs.CodeInvalidParameter, "real tile plan", "%d pipes for %d columns", opt.NumPipe, cols)
	}
	return RealTilePlan{
		NumPipe: opt.NumPipe,
		Columns: cols,
		Passes:  (cols + opt.NumPipe - 1) / opt.NumPipe,
	}, nil
}

// Column returns the tile column decoded by pipe in pass, and false when
// that pipe idles in that pass.
func (p RealTilePlan) Column(pass, pipe int) (int, bool) {
	if pass < 0 || pass >= p.Passes || pipe < 0 || pipe >= p.NumPipe {
		return 0, false
	}
	col := pass*p.NumPipe + pipe
	return col, col < p.Columns
}

// PipesInPass returns how many pipes work in pass.
func (p RealTilePlan) PipesInPass(pass int) int {
	if pass < 0 || pass >= p.Passes {
		return 0
	}
	return min(p.NumPipe, p.Columns-pass*p.NumPipe)
}

// LastPass reports whether pass is the final one.
func (p RealTilePlan) LastPass(pass int) bool { return pass == p.Passes-1 }
