// Package gex computes gamma exposure from a frozen collection snapshot.
// Aggregation is a pure function: it never mutates its inputs and carries
// no state between calls.
package gex

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/gexstream/internal/chain"
	"github.com/dgnsrekt/gexstream/internal/collect"
)

// contractMultiplier is the standard equity option contract size.
const contractMultiplier = 100

// StrikeRecord is the exposure at one strike.
type StrikeRecord struct {
	Strike float64 `json:"strike"`

	CallGamma float64 `json:"call_gamma"`
	PutGamma  float64 `json:"put_gamma"`
	CallOI    float64 `json:"call_oi"`
	PutOI     float64 `json:"put_oi"`
	CallIV    float64 `json:"call_iv"`
	PutIV     float64 `json:"put_iv"`

	CallGEX float64 `json:"call_gex"`
	PutGEX  float64 `json:"put_gex"`
	NetGEX  float64 `json:"net_gex"`
	AbsGEX  float64 `json:"abs_gex"`
}

// Snapshot is the aggregated exposure for one underlying/expiration at
// one moment. Immutable once produced.
type Snapshot struct {
	FetchID     string    `json:"fetch_id"`
	Underlying  string    `json:"underlying"`
	Expiration  string    `json:"expiration"`
	Spot        float64   `json:"spot"`
	GeneratedAt time.Time `json:"generated_at"`

	Strikes []StrikeRecord `json:"strikes"`

	TotalCallGEX float64 `json:"total_call_gex"`
	TotalPutGEX  float64 `json:"total_put_gex"`
	NetTotal     float64 `json:"net_total"`

	MaxGEXStrike float64 `json:"max_gex_strike"`

	// ZeroGammaLevel is nil when net GEX never changes sign across the
	// strike range. Absent is not zero.
	ZeroGammaLevel *float64 `json:"zero_gamma_level,omitempty"`

	// Complete is false when the collection window closed before every
	// expected symbol reported Greeks, Summary, and Trade.
	Complete bool `json:"complete"`
}

// Aggregate computes gamma exposure per strike across the chain. Missing
// or NaN fields contribute zero, never an error. Two calls on the same
// inputs differ only in FetchID and GeneratedAt.
func Aggregate(spot float64, snapshot map[string]collect.Record, ch *chain.Chain, complete bool) *Snapshot {
	out := &Snapshot{
		FetchID:     uuid.New().String(),
		Underlying:  ch.Underlying,
		Expiration:  ch.Expiration,
		Spot:        spot,
		GeneratedAt: time.Now().UTC(),
		Strikes:     make([]StrikeRecord, 0, len(ch.Contracts)),
		Complete:    complete,
	}

	for _, ct := range ch.Contracts {
		call := snapshot[ct.CallSymbol]
		put := snapshot[ct.PutSymbol]

		rec := StrikeRecord{
			Strike:    ct.Strike,
			CallGamma: orZero(call.Gamma),
			PutGamma:  orZero(put.Gamma),
			CallOI:    orZero(call.OpenInterest),
			PutOI:     orZero(put.OpenInterest),
			CallIV:    orZero(call.Volatility),
			PutIV:     orZero(put.Volatility),
		}
		rec.CallGEX = rec.CallGamma * rec.CallOI * contractMultiplier * spot
		rec.PutGEX = rec.PutGamma * rec.PutOI * contractMultiplier * spot
		rec.NetGEX = rec.CallGEX - rec.PutGEX
		rec.AbsGEX = math.Abs(rec.NetGEX)

		out.TotalCallGEX += rec.CallGEX
		out.TotalPutGEX += rec.PutGEX
		out.Strikes = append(out.Strikes, rec)
	}
	out.NetTotal = out.TotalCallGEX - out.TotalPutGEX

	out.MaxGEXStrike = maxGEXStrike(out.Strikes)
	out.ZeroGammaLevel = zeroGammaLevel(out.Strikes)
	return out
}

// orZero substitutes zero for NaN fields so absent data never poisons
// the totals.
func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// maxGEXStrike picks the strike with the greatest net GEX magnitude,
// lowest strike on ties. Strikes arrive ascending, so strict greater-than
// keeps the earlier strike.
func maxGEXStrike(strikes []StrikeRecord) float64 {
	if len(strikes) == 0 {
		return 0
	}
	best := strikes[0]
	for _, rec := range strikes[1:] {
		if rec.AbsGEX > best.AbsGEX {
			best = rec
		}
	}
	return best.Strike
}

// zeroGammaLevel interpolates the price where net GEX crosses zero at the
// first sign change in ascending strike order, nil when no change exists.
func zeroGammaLevel(strikes []StrikeRecord) *float64 {
	for i := 1; i < len(strikes); i++ {
		lo, hi := strikes[i-1], strikes[i]
		if (lo.NetGEX < 0 && hi.NetGEX >= 0) || (lo.NetGEX > 0 && hi.NetGEX <= 0) {
			span := hi.NetGEX - lo.NetGEX
			level := lo.Strike + (hi.Strike-lo.Strike)*(-lo.NetGEX)/span
			return &level
		}
	}
	return nil
}
