// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scalability

const defaultCTBLog2 = 6

// Decide runs the ordered decision list. The first matching rule wins.
func Decide(p Pars, l Limits) Decision {
	ov := p.Overrides
	single := func(r Reason) Decision {
		return Decision{
			Option: Option{NumPipe: 1, Mode: ModeSingle, UsingSFC: p.UsingSFC, RateControl: p.RateControl},
			Reason: r,
		}
	}

	if p.HWPipes < 2 {
		return single(ReasonSinglePipePlatform)
	}
	if ov.DisableScalability {
		return single(ReasonUserDisabled)
	}

	cols, rows := atLeastOne(p.TileColumns), atLeastOne(p.TileRows)

	if ov.ForceMultiPipe {
		if p.ScreenContent {
			return single(ReasonScreenContent)
		}
		n := ov.UserPipes
		if n < 2 || n > p.HWPipes {
			n = p.HWPipes
		}
		return virtualTile(p, l, clampVT(n, l), ReasonUserForced, single)
	}

	if realTileEligible(p, l, cols, rows) {
		return Decision{
			Option: Option{
				NumPipe:     min(cols, p.HWPipes),
				Mode:        ModeRealTile,
				UsingSFC:    p.UsingSFC,
				RateControl: p.RateControl,
			},
			Reason: ReasonRealTile,
		}
	}

	if p.ScreenContent {
		return single(ReasonScreenContent)
	}

	area := p.FrameWidth * p.FrameHeight
	switch {
	case l.LargeThresholdPixels > 0 && area >= l.LargeThresholdPixels:
		return virtualTile(p, l, clampVT(p.HWPipes, l), ReasonLargeResolution, single)
	case l.TypicalThresholdPixels > 0 && area >= l.TypicalThresholdPixels:
		return virtualTile(p, l, clampVT(min(l.TypicalPipes, p.HWPipes), l), ReasonTypicalResolution, single)
	default:
		return single(ReasonSmallResolution)
	}
}

func realTileEligible(p Pars, l Limits, cols, rows int) bool {
	if !l.RealTileSupported || p.Overrides.DisableRealTile {
		return false
	}
	if cols <= 1 || cols > l.MaxRealTileColumns || rows > l.MaxRealTileRows {
		return false
	}
	return p.Overrides.RealTileMultiPhase || cols <= p.HWPipes
}

// virtualTile builds a virtual tile decision for n pipes, or falls back
// to single pipe when the frame is too narrow to split.
func virtualTile(p Pars, l Limits, n int, r Reason, single func(Reason) Decision) Decision {
	if n < 2 {
		return single(ReasonSmallResolution)
	}
	minCols := l.MinCTBColumnsPerPipe
	if minCols < 1 {
		minCols = 1
	}
	if widthInCTBs(p.FrameWidth, p.CTBLog2) < n*minCols {
		return single(ReasonSmallResolution)
	}
	return Decision{
		Option: Option{
			NumPipe:     n,
			Mode:        ModeVirtualTile,
			FESeparate:  l.FESeparateMinPipes > 0 && p.HWPipes >= l.FESeparateMinPipes,
			UsingSFC:    p.UsingSFC,
			RateControl: p.RateControl,
		},
		Reason: r,
	}
}

func clampVT(n int, l Limits) int {
	if l.MaxVirtualTilePipes > 0 && n > l.MaxVirtualTilePipes {
		return l.MaxVirtualTilePipes
	}
	return n
}

func widthInCTBs(width, ctbLog2 int) int {
	if ctbLog2 <= 0 {
		ctbLog2 = defaultCTBLog2
	}
	s := 1 << ctbLog2
	return (width + s - 1) / s
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Selector holds the option of the previous frame so callers can reuse
// the execution contexts built for it.
type Selector struct {
	limits  Limits
	current Option
	reason  Reason
	set     bool
}

// NewSelector returns a selector with no current option.
func NewSelector(l Limits) *Selector {
	return &Selector{limits: l}
}

// SetScalabilityOption computes and stores a fresh option.
func (s *Selector) SetScalabilityOption(p Pars) Decision {
	d := Decide(p, s.limits)
	s.current, s.reason, s.set = d.Option, d.Reason, true
	return d
}

// IsScalabilityOptionMatched recomputes from p and compares field by field
// with the current option. It never updates state.
func (s *Selector) IsScalabilityOptionMatched(p Pars) bool {
	if !s.set {
		return false
	}
	return Decide(p, s.limits).Option == s.current
}

// Current returns the stored decision and whether one exists.
func (s *Selector) Current() (Decision, bool) {
	return Decision{Option: s.current, Reason: s.reason}, s.set
}

// Limits returns the platform limits the selector decides with.
func (s *Selector) Limits() Limits { return s.limits }
