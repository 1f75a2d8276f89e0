package config

// Preset holds the option chain parameters for a known underlying.
type Preset struct {
	Prefix       string  // option symbol root (e.g. SPXW for SPX weeklies)
	Increment    float64 // strike increment
	DefaultPrice float64 // fallback center price when no live quote arrives
}

// Presets maps supported underlyings to their chain parameters.
var Presets = map[string]Preset{
	"SPX": {Prefix: "SPXW", Increment: 5, DefaultPrice: 6000},
	"NDX": {Prefix: "NDXP", Increment: 25, DefaultPrice: 20000},
	"SPY": {Prefix: "SPY", Increment: 1, DefaultPrice: 680},
	"QQQ": {Prefix: "QQQ", Increment: 1, DefaultPrice: 612},
	"IWM": {Prefix: "IWM", Increment: 1, DefaultPrice: 240},
	"DIA": {Prefix: "DIA", Increment: 1, DefaultPrice: 450},
}

// PresetFor returns the preset for an underlying, if one is known.
func PresetFor(underlying string) (Preset, bool) {
	p, ok := Presets[underlying]
	return p, ok
}

// DefaultUnderlyings lists the presets in display order.
var DefaultUnderlyings = []string{"SPX", "NDX", "SPY", "QQQ", "IWM", "DIA"}
