package domain

import (
	"fmt"
	"math"
)

// MarketTick is a single market data observation for one symbol.
type MarketTick struct {
	T      int64   `json:"t"`      // observation time, Unix milliseconds
	Symbol string  `json:"symbol"` // instrument identifier
	Bid    float64 `json:"bid"`    // best bid, 0 when unknown
	Ask    float64 `json:"ask"`    // best ask, 0 when unknown
	Last   float64 `json:"last"`   // last traded price
}

// Mid returns the bid/ask midpoint, falling back to last when one side is missing.
func (t MarketTick) Mid() float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return (t.Bid + t.Ask) / 2
	}
	return t.Last
}

// Validate checks the tick for structural defects.
func (t MarketTick) Validate() error {
	if t.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "empty"}
	}
	if t.Last <= 0 || math.IsNaN(t.Last) || math.IsInf(t.Last, 0) {
		return &ValidationError{Field: "last", Reason: fmt.Sprintf("not a positive finite price: %v", t.Last)}
	}
	if t.Bid < 0 || math.IsNaN(t.Bid) || math.IsInf(t.Bid, 0) {
		return &ValidationError{Field: "bid", Reason: fmt.Sprintf("negative or non-finite: %v", t.Bid)}
	}
	if t.Ask < 0 || math.IsNaN(t.Ask) || math.IsInf(t.Ask, 0) {
		return &ValidationError{Field: "ask", Reason: fmt.Sprintf("negative or non-finite: %v", t.Ask)}
	}
	if t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask {
		return &ValidationError{Field: "bid", Reason: "crossed book: bid above ask"}
	}
	return nil
}

// NewMarketTickEvent validates a tick and wraps it in an envelope.
func NewMarketTickEvent(ts int64, tick MarketTick) (Event, error) {
	if err := tick.Validate(); err != nil {
		return Event{}, err
	}
	return newEvent(EventMarketTick, ts, tick)
}

// DecodeMarketTick unmarshals a market.tick payload.
func DecodeMarketTick(ev Event) (MarketTick, error) {
	return decodePayload[MarketTick](ev, EventMarketTick)
}
