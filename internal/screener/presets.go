package screener

import "fmt"

// Preset names. Presets are sugar: they resolve into the same Filter the
// ad-hoc path uses, then explicit query bounds tighten on top.
const (
	PresetLowMcapHighSmart  = "low-mcap-high-smart"
	PresetFreshAccumulation = "fresh-accumulation"
	PresetWhaleFavorites    = "whale-favorites"
)

// resolvePreset merges a preset's bounds into the explicit filter. Explicit
// bounds win only when stricter, so a preset result set is always a superset
// of the same query with extra constraints.
func resolvePreset(preset string, explicit Filter) (Filter, error) {
	base := explicit
	switch preset {
	case "":
		return base, nil

	case PresetLowMcapHighSmart:
		tightenMax(&base.MaxMarketCap, 1_000_000)
		tightenMinInt(&base.MinSmartWallets, 5)

	case PresetFreshAccumulation:
		tightenMin(&base.MinAccumulationScore, 70)
		tightenMaxInt(&base.MaxAgeDays, 30)

	case PresetWhaleFavorites:
		tightenMin(&base.MinWhaleInflowPct, 40)
		tightenMin(&base.MinVolume24h, 100_000)

	default:
		return Filter{}, fmt.Errorf("unknown screener preset %q", preset)
	}
	return base, nil
}

func tightenMin(field **float64, v float64) {
	if *field == nil || **field < v {
		val := v
		*field = &val
	}
}

func tightenMax(field **float64, v float64) {
	if *field == nil || **field > v {
		val := v
		*field = &val
	}
}

func tightenMinInt(field **int, v int) {
	if *field == nil || **field < v {
		val := v
		*field = &val
	}
}

func tightenMaxInt(field **int, v int) {
	if *field == nil || **field > v {
		val := v
		*field = &val
	}
}
