// Package collect merges streamed feed events into per-instrument records
// over a bounded collection window.
package collect

import (
	"math"
	"sync"

	"github.com/dgnsrekt/gexstream/internal/dxlink"
)

// Record is the merged view of one instrument. Fields start as NaN and
// are overwritten last-write-wins as events arrive; the Has* flags track
// which event kinds have been seen at least once.
type Record struct {
	Symbol string

	Gamma      float64
	Delta      float64
	Theta      float64
	Vega       float64
	Volatility float64

	OpenInterest float64
	PrevClose    float64

	LastTradePrice float64
	DayVolume      float64

	BidPrice float64
	AskPrice float64

	HasGreeks  bool
	HasSummary bool
	HasTrade   bool
	HasQuote   bool
}

func newRecord(symbol string) *Record {
	nan := math.NaN()
	return &Record{
		Symbol:         symbol,
		Gamma:          nan,
		Delta:          nan,
		Theta:          nan,
		Vega:           nan,
		Volatility:     nan,
		OpenInterest:   nan,
		PrevClose:      nan,
		LastTradePrice: nan,
		DayVolume:      nan,
		BidPrice:       nan,
		AskPrice:       nan,
	}
}

// Collector accumulates events for an expected instrument set. Safe for
// one feed goroutine applying events while another checks completeness.
type Collector struct {
	mu       sync.Mutex
	expected []string
	records  map[string]*Record
	applied  int
}

// New prepares a collector for the given expected instrument symbols.
// Events for symbols outside the set are still recorded; completeness is
// judged against the expected set only.
func New(expected []string) *Collector {
	return &Collector{
		expected: append([]string(nil), expected...),
		records:  make(map[string]*Record, len(expected)),
	}
}

// Apply merges one event into the symbol's record, last write wins.
func (c *Collector) Apply(ev dxlink.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[ev.EventSymbol()]
	if !ok {
		rec = newRecord(ev.EventSymbol())
		c.records[ev.EventSymbol()] = rec
	}
	c.applied++

	switch e := ev.(type) {
	case dxlink.GreeksEvent:
		rec.Gamma = e.Gamma
		rec.Delta = e.Delta
		rec.Theta = e.Theta
		rec.Vega = e.Vega
		rec.Volatility = e.Volatility
		rec.HasGreeks = true
	case dxlink.SummaryEvent:
		rec.OpenInterest = e.OpenInterest
		rec.PrevClose = e.PrevDayClose
		rec.HasSummary = true
	case dxlink.TradeEvent:
		rec.LastTradePrice = e.Price
		rec.DayVolume = e.DayVolume
		rec.HasTrade = true
	case dxlink.QuoteEvent:
		rec.BidPrice = e.BidPrice
		rec.AskPrice = e.AskPrice
		rec.HasQuote = true
	}
}

// Complete reports whether every expected symbol has received Greeks,
// Summary, and Trade at least once.
func (c *Collector) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sym := range c.expected {
		rec, ok := c.records[sym]
		if !ok || !rec.HasGreeks || !rec.HasSummary || !rec.HasTrade {
			return false
		}
	}
	return true
}

// Applied returns the number of events merged so far.
func (c *Collector) Applied() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Snapshot freezes the current state into an immutable copy. Later
// events do not affect a snapshot already taken.
func (c *Collector) Snapshot() map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Record, len(c.records))
	for sym, rec := range c.records {
		out[sym] = *rec
	}
	return out
}

// Missing lists the expected symbols that still lack one of the three
// required event kinds, for logging partial windows.
func (c *Collector) Missing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, sym := range c.expected {
		rec, ok := c.records[sym]
		if !ok || !rec.HasGreeks || !rec.HasSummary || !rec.HasTrade {
			out = append(out, sym)
		}
	}
	return out
}
