package domain

import (
	"fmt"
	"math"
)

// OrderType represents how an order is priced.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// IsValid checks if the order type is a valid value.
func (t OrderType) IsValid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// TIF represents an order's time-in-force.
type TIF string

const (
	TIFDay TIF = "day"
	TIFIOC TIF = "ioc"
)

// IsValid checks if the time-in-force is a valid value.
func (t TIF) IsValid() bool {
	return t == TIFDay || t == TIFIOC
}

// Order is a request for execution, carried by an order.new event and
// submitted to an execution adapter.
type Order struct {
	OrderID string    `json:"orderId"` // uuid, assigned at construction
	T       int64     `json:"t"`       // creation time, Unix milliseconds
	Symbol  string    `json:"symbol"`  // instrument to trade
	Side    Side      `json:"side"`    // buy or sell
	Qty     float64   `json:"qty"`     // quantity, always positive
	Type    OrderType `json:"type"`    // market or limit
	Limit   float64   `json:"limit"`   // limit price, 0 for market orders
	TIF     TIF       `json:"tif"`     // time-in-force
}

// Validate checks the order for structural defects.
func (o Order) Validate() error {
	if o.OrderID == "" {
		return &ValidationError{Field: "orderId", Reason: "empty"}
	}
	if o.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "empty"}
	}
	if !o.Side.IsValid() {
		return &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if o.Qty <= 0 || math.IsNaN(o.Qty) || math.IsInf(o.Qty, 0) {
		return &ValidationError{Field: "qty", Reason: fmt.Sprintf("not a positive finite quantity: %v", o.Qty)}
	}
	if !o.Type.IsValid() {
		return &ValidationError{Field: "type", Reason: "must be market or limit"}
	}
	if o.Type == OrderTypeLimit && (o.Limit <= 0 || math.IsNaN(o.Limit) || math.IsInf(o.Limit, 0)) {
		return &ValidationError{Field: "limit", Reason: "limit orders need a positive finite limit price"}
	}
	if !o.TIF.IsValid() {
		return &ValidationError{Field: "tif", Reason: "must be day or ioc"}
	}
	return nil
}

// OrderAck reports venue acceptance of an order. Not terminal: a fill or
// reject always follows.
type OrderAck struct {
	OrderID string `json:"orderId"`
	T       int64  `json:"t"`
	Symbol  string `json:"symbol"`
	Venue   string `json:"venue"`
}

// OrderFill reports a completed execution. Terminal for the order.
type OrderFill struct {
	OrderID string  `json:"orderId"`
	T       int64   `json:"t"`
	Symbol  string  `json:"symbol"`
	Side    Side    `json:"side"`
	Qty     float64 `json:"qty"` // filled quantity, positive
	Px      float64 `json:"px"`  // execution price
	Fee     float64 `json:"fee"` // venue fee charged
	Venue   string  `json:"venue"`
}

// OrderReject reports a failed execution. Terminal for the order.
type OrderReject struct {
	OrderID string `json:"orderId"`
	T       int64  `json:"t"`
	Symbol  string `json:"symbol"`
	Reason  string `json:"reason"`
	Venue   string `json:"venue"`
}

// NewOrderEvent validates an order and wraps it in an order.new envelope.
func NewOrderEvent(ts int64, o Order) (Event, error) {
	if err := o.Validate(); err != nil {
		return Event{}, err
	}
	return newEvent(EventOrderNew, ts, o)
}

// NewOrderAckEvent wraps an ack in an envelope.
func NewOrderAckEvent(ts int64, a OrderAck) (Event, error) {
	return newEvent(EventOrderAck, ts, a)
}

// NewOrderFillEvent wraps a fill in an envelope.
func NewOrderFillEvent(ts int64, f OrderFill) (Event, error) {
	return newEvent(EventOrderFill, ts, f)
}

// NewOrderRejectEvent wraps a reject in an envelope.
func NewOrderRejectEvent(ts int64, r OrderReject) (Event, error) {
	return newEvent(EventOrderReject, ts, r)
}

// DecodeOrder unmarshals an order.new payload.
func DecodeOrder(ev Event) (Order, error) {
	return decodePayload[Order](ev, EventOrderNew)
}

// DecodeOrderAck unmarshals an order.ack payload.
func DecodeOrderAck(ev Event) (OrderAck, error) {
	return decodePayload[OrderAck](ev, EventOrderAck)
}

// DecodeOrderFill unmarshals an order.fill payload.
func DecodeOrderFill(ev Event) (OrderFill, error) {
	return decodePayload[OrderFill](ev, EventOrderFill)
}

// DecodeOrderReject unmarshals an order.reject payload.
func DecodeOrderReject(ev Event) (OrderReject, error) {
	return decodePayload[OrderReject](ev, EventOrderReject)
}
