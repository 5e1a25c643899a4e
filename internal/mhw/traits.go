package mhw

import (
	"sort"

	"github.com/ManuGH/mediahal/internal/errs"
)

// Traits are the per-generation deltas the shared packet code consults.
type Traits struct {
	Generation string
	// PicStatePadding is the number of reserved dwords after PictureState.
	PicStatePadding int
	// AuthCheckRequired guards firmware payloads with the authentication
	// loop before they run.
	AuthCheckRequired bool
	// RealTile reports support for independently addressed tile columns.
	RealTile bool
	// MaxVirtualTilePipes caps virtual tile pipe counts.
	MaxVirtualTilePipes int
}

var traits = map[string]Traits{
	"gen12": {
		Generation:          "gen12",
		PicStatePadding:     0,
		AuthCheckRequired:   true,
		RealTile:            true,
		MaxVirtualTilePipes: 8,
	},
	"xe_hpm": {
		Generation:          "xe_hpm",
		PicStatePadding:     2,
		AuthCheckRequired:   true,
		RealTile:            true,
		MaxVirtualTilePipes: 8,
	},
	"xe_lpm_plus": {
		Generation:          "xe_lpm_plus",
		PicStatePadding:     4,
		AuthCheckRequired:   false,
		RealTile:            true,
		MaxVirtualTilePipes: 8,
	},
}

// TraitsFor returns the traits of generation gen.
func TraitsFor(gen string) (Traits, error) {
	t, ok := traits[gen]
	if !ok {
		return Traits{}, errs.New(errs.CodeUnimplemented, "traits", "generation %q", gen)
	}
	return t, nil
}

// Generations lists the supported generations in stable order.
func Generations() []string {
	out := make([]string, 0, len(traits))
	for g := range traits {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
