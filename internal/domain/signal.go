package domain

import "math"

// Side represents the direction of a signal or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Signal is a trading intent emitted by a strategy on an edge transition.
type Signal struct {
	T        int64   `json:"t"`        // emission time, Unix milliseconds
	Symbol   string  `json:"symbol"`   // instrument the signal targets
	Side     Side    `json:"side"`     // buy or sell
	Strength float64 `json:"strength"` // magnitude of the crossing edge
	Strategy string  `json:"strategy"` // emitting strategy name
	Reason   string  `json:"reason"`   // human-readable trigger
}

// Validate checks the signal for structural defects.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "empty"}
	}
	if !s.Side.IsValid() {
		return &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if math.IsNaN(s.Strength) || math.IsInf(s.Strength, 0) {
		return &ValidationError{Field: "strength", Reason: "non-finite"}
	}
	if s.Strategy == "" {
		return &ValidationError{Field: "strategy", Reason: "empty"}
	}
	return nil
}

// NewSignalEvent validates a signal and wraps it in an envelope.
func NewSignalEvent(ts int64, sig Signal) (Event, error) {
	if err := sig.Validate(); err != nil {
		return Event{}, err
	}
	return newEvent(EventSignal, ts, sig)
}

// DecodeSignal unmarshals a strategy.signal payload.
func DecodeSignal(ev Event) (Signal, error) {
	return decodePayload[Signal](ev, EventSignal)
}
