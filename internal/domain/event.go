package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventType identifies the kind of payload an event carries.
type EventType string

const (
	EventMarketTick      EventType = "market.tick"
	EventSignal          EventType = "strategy.signal"
	EventOrderNew        EventType = "order.new"
	EventOrderAck        EventType = "order.ack"
	EventOrderFill       EventType = "order.fill"
	EventOrderReject     EventType = "order.reject"
	EventSnapshot        EventType = "portfolio.snapshot"
	EventBalanceAdjusted EventType = "account.balance.adjusted"
	EventMarginUpdated   EventType = "account.margin.updated"
	EventTransfer        EventType = "account.transfer"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventMarketTick, EventSignal, EventOrderNew, EventOrderAck,
		EventOrderFill, EventOrderReject, EventSnapshot,
		EventBalanceAdjusted, EventMarginUpdated, EventTransfer:
		return true
	}
	return false
}

// ParseEventType validates a raw tag against the known event types.
func ParseEventType(raw string) (EventType, error) {
	t := EventType(raw)
	if !t.IsValid() {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", raw)}
	}
	return t, nil
}

// Event is the envelope appended to the log. The total order of events is
// the store-assigned sequence, never TS: TS records when the event was
// created and is metadata only.
type Event struct {
	ID   string          `json:"id"`   // uuid v4
	Type EventType       `json:"type"` // payload discriminator
	Data json.RawMessage `json:"data"` // typed payload, JSON-encoded
	TS   int64           `json:"ts"`   // creation time, Unix milliseconds
}

// newEvent wraps a payload into an envelope with a fresh id.
func newEvent(typ EventType, ts int64, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:   uuid.NewString(),
		Type: typ,
		Data: data,
		TS:   ts,
	}, nil
}

// decodePayload unmarshals an event's data after checking the type tag.
func decodePayload[P any](ev Event, want EventType) (P, error) {
	var p P
	if ev.Type != want {
		return p, fmt.Errorf("decode %s: event %s has type %s", want, ev.ID, ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return p, fmt.Errorf("decode %s payload of event %s: %w", want, ev.ID, err)
	}
	return p, nil
}
