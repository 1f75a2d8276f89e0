// Package chain generates and parses option instrument symbols in the
// streamer's canonical form: "." + prefix + YYMMDD + C|P + strike.
package chain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Side is the option side, call or put.
type Side string

const (
	SideCall Side = "C"
	SidePut  Side = "P"
)

// Contract pairs the call and put symbols at one strike.
type Contract struct {
	Strike     float64
	CallSymbol string
	PutSymbol  string
}

// Chain is the ordered instrument set for one underlying/expiration,
// strictly ascending by strike.
type Chain struct {
	Underlying string
	Prefix     string
	Expiration string // YYMMDD
	Increment  float64
	Contracts  []Contract
}

// Build generates the chain around a center price. The center is rounded
// to the nearest multiple of increment; the chain extends below strikes
// down and above strikes up in increment steps.
func Build(underlying, prefix, expiration string, center float64, above, below int, increment float64) (*Chain, error) {
	if increment <= 0 {
		return nil, fmt.Errorf("increment must be positive, got %v", increment)
	}
	if above < 0 || below < 0 {
		return nil, fmt.Errorf("strike counts must be non-negative, got above=%d below=%d", above, below)
	}
	if len(expiration) != 6 {
		return nil, fmt.Errorf("expiration must be YYMMDD, got %q", expiration)
	}

	centerStrike := math.Round(center/increment) * increment

	contracts := make([]Contract, 0, above+below+1)
	for i := -below; i <= above; i++ {
		strike := centerStrike + float64(i)*increment
		s := FormatStrike(strike)
		contracts = append(contracts, Contract{
			Strike:     strike,
			CallSymbol: "." + prefix + expiration + string(SideCall) + s,
			PutSymbol:  "." + prefix + expiration + string(SidePut) + s,
		})
	}

	return &Chain{
		Underlying: underlying,
		Prefix:     prefix,
		Expiration: expiration,
		Increment:  increment,
		Contracts:  contracts,
	}, nil
}

// Symbols returns every option symbol in the chain, calls then puts per
// strike, ascending by strike.
func (c *Chain) Symbols() []string {
	out := make([]string, 0, 2*len(c.Contracts))
	for _, ct := range c.Contracts {
		out = append(out, ct.CallSymbol, ct.PutSymbol)
	}
	return out
}

// Strikes returns the strike sequence, ascending.
func (c *Chain) Strikes() []float64 {
	out := make([]float64, len(c.Contracts))
	for i, ct := range c.Contracts {
		out[i] = ct.Strike
	}
	return out
}

// FormatStrike renders a strike without a trailing fraction for whole
// numbers (680) and with minimal decimal digits otherwise (2.5).
func FormatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// Parsed holds the components of a canonical option symbol.
type Parsed struct {
	Prefix     string
	Expiration string
	Side       Side
	Strike     float64
}

var symbolPattern = regexp.MustCompile(`^\.([A-Z]+)(\d{6})([CP])(\d+(?:\.\d+)?)$`)

// Parse decomposes a canonical option symbol. The second return is false
// for anything that does not match, including underlying symbols.
func Parse(symbol string) (Parsed, bool) {
	m := symbolPattern.FindStringSubmatch(symbol)
	if m == nil {
		return Parsed{}, false
	}
	strike, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{
		Prefix:     m[1],
		Expiration: m[2],
		Side:       Side(m[3]),
		Strike:     strike,
	}, true
}
