package domain

import (
	"fmt"
	"math"
)

// TransferDirection represents which way an account transfer moves cash.
type TransferDirection string

const (
	TransferDeposit  TransferDirection = "deposit"
	TransferWithdraw TransferDirection = "withdraw"
)

// IsValid checks if the direction is a valid value.
func (d TransferDirection) IsValid() bool {
	return d == TransferDeposit || d == TransferWithdraw
}

// BalanceAdjusted records a signed cash adjustment (corrections, interest,
// manual rebalances).
type BalanceAdjusted struct {
	T      int64   `json:"t"`
	Delta  float64 `json:"delta"` // signed cash change
	Reason string  `json:"reason"`
}

// MarginUpdated records the current margin requirement for the account.
type MarginUpdated struct {
	T      int64   `json:"t"`
	Margin float64 `json:"margin"`
}

// Transfer records cash moving in or out of the account.
type Transfer struct {
	T         int64             `json:"t"`
	Amount    float64           `json:"amount"` // always positive
	Direction TransferDirection `json:"direction"`
}

// NewBalanceAdjustedEvent validates and wraps a balance adjustment.
func NewBalanceAdjustedEvent(ts int64, b BalanceAdjusted) (Event, error) {
	if math.IsNaN(b.Delta) || math.IsInf(b.Delta, 0) {
		return Event{}, &ValidationError{Field: "delta", Reason: "non-finite"}
	}
	return newEvent(EventBalanceAdjusted, ts, b)
}

// NewMarginUpdatedEvent validates and wraps a margin update.
func NewMarginUpdatedEvent(ts int64, m MarginUpdated) (Event, error) {
	if m.Margin < 0 || math.IsNaN(m.Margin) || math.IsInf(m.Margin, 0) {
		return Event{}, &ValidationError{Field: "margin", Reason: fmt.Sprintf("negative or non-finite: %v", m.Margin)}
	}
	return newEvent(EventMarginUpdated, ts, m)
}

// NewTransferEvent validates and wraps a transfer.
func NewTransferEvent(ts int64, t Transfer) (Event, error) {
	if t.Amount <= 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return Event{}, &ValidationError{Field: "amount", Reason: fmt.Sprintf("not a positive finite amount: %v", t.Amount)}
	}
	if !t.Direction.IsValid() {
		return Event{}, &ValidationError{Field: "direction", Reason: "must be deposit or withdraw"}
	}
	return newEvent(EventTransfer, ts, t)
}

// DecodeBalanceAdjusted unmarshals an account.balance.adjusted payload.
func DecodeBalanceAdjusted(ev Event) (BalanceAdjusted, error) {
	return decodePayload[BalanceAdjusted](ev, EventBalanceAdjusted)
}

// DecodeMarginUpdated unmarshals an account.margin.updated payload.
func DecodeMarginUpdated(ev Event) (MarginUpdated, error) {
	return decodePayload[MarginUpdated](ev, EventMarginUpdated)
}

// DecodeTransfer unmarshals an account.transfer payload.
func DecodeTransfer(ev Event) (Transfer, error) {
	return decodePayload[Transfer](ev, EventTransfer)
}
