package dxlink

import (
	"math"
	"strconv"
)

// EventKind is the feed event type. The union is closed: the four kinds
// below are the only ones this client subscribes to or dispatches.
type EventKind string

const (
	KindQuote   EventKind = "Quote"
	KindTrade   EventKind = "Trade"
	KindGreeks  EventKind = "Greeks"
	KindSummary EventKind = "Summary"
)

// Event is one feed event for one instrument.
type Event interface {
	EventSymbol() string
	EventKind() EventKind
}

// QuoteEvent carries the current bid/ask for an instrument.
type QuoteEvent struct {
	Symbol   string
	BidPrice float64
	AskPrice float64
}

func (e QuoteEvent) EventSymbol() string  { return e.Symbol }
func (e QuoteEvent) EventKind() EventKind { return KindQuote }

// Mid returns the bid/ask midpoint, or NaN when either side is missing.
func (e QuoteEvent) Mid() float64 {
	return (e.BidPrice + e.AskPrice) / 2
}

// TradeEvent carries the last trade price and cumulative day volume.
type TradeEvent struct {
	Symbol    string
	Price     float64
	DayVolume float64
}

func (e TradeEvent) EventSymbol() string  { return e.Symbol }
func (e TradeEvent) EventKind() EventKind { return KindTrade }

// GreeksEvent carries option sensitivities and implied volatility.
type GreeksEvent struct {
	Symbol     string
	Gamma      float64
	Delta      float64
	Theta      float64
	Vega       float64
	Volatility float64
}

func (e GreeksEvent) EventSymbol() string  { return e.Symbol }
func (e GreeksEvent) EventKind() EventKind { return KindGreeks }

// SummaryEvent carries open interest and the previous session close.
type SummaryEvent struct {
	Symbol       string
	OpenInterest float64
	PrevDayClose float64
}

func (e SummaryEvent) EventSymbol() string  { return e.Symbol }
func (e SummaryEvent) EventKind() EventKind { return KindSummary }

// floatField extracts a numeric field from a feed data item. The feed
// sends numbers, numeric strings, or the literal string "NaN"; anything
// unusable becomes NaN and is zero-defaulted downstream.
func floatField(item map[string]any, key string) float64 {
	switch v := item[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// eventFromItem converts one FEED_DATA item into a typed event. Unknown
// event types yield (nil, false) and are skipped, not fatal.
func eventFromItem(item map[string]any) (Event, bool) {
	symbol, _ := item["eventSymbol"].(string)
	kind, _ := item["eventType"].(string)
	if symbol == "" {
		return nil, false
	}

	switch EventKind(kind) {
	case KindQuote:
		return QuoteEvent{
			Symbol:   symbol,
			BidPrice: floatField(item, "bidPrice"),
			AskPrice: floatField(item, "askPrice"),
		}, true
	case KindTrade:
		return TradeEvent{
			Symbol:    symbol,
			Price:     floatField(item, "price"),
			DayVolume: floatField(item, "dayVolume"),
		}, true
	case KindGreeks:
		return GreeksEvent{
			Symbol:     symbol,
			Gamma:      floatField(item, "gamma"),
			Delta:      floatField(item, "delta"),
			Theta:      floatField(item, "theta"),
			Vega:       floatField(item, "vega"),
			Volatility: floatField(item, "volatility"),
		}, true
	case KindSummary:
		return SummaryEvent{
			Symbol:       symbol,
			OpenInterest: floatField(item, "openInterest"),
			PrevDayClose: floatField(item, "prevDayClosePrice"),
		}, true
	default:
		return nil, false
	}
}
