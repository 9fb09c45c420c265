package projection

import (
	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// OrderStatus is the lifecycle stage of an order in the orders read model.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusAcked    OrderStatus = "acked"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
)

// OrderView is one order's folded lifecycle.
type OrderView struct {
	OrderID string      `json:"orderId"`
	Symbol  string      `json:"symbol"`
	Side    domain.Side `json:"side"`
	Qty     float64     `json:"qty"`
	Status  OrderStatus `json:"status"`
	FillPx  float64     `json:"fillPx,omitempty"`  // set when filled
	FillQty float64     `json:"fillQty,omitempty"` // set when filled
	Fee     float64     `json:"fee,omitempty"`     // set when filled
	Reason  string      `json:"reason,omitempty"`  // set when rejected
	Venue   string      `json:"venue,omitempty"`
	TS      int64       `json:"ts"` // business timestamp of the latest lifecycle event
}

// OrdersState maps order id to its current view.
type OrdersState struct {
	Orders map[string]OrderView
}

// CloneOrdersState deep-copies an orders state.
func CloneOrdersState(s OrdersState) OrdersState {
	out := OrdersState{Orders: make(map[string]OrderView, len(s.Orders))}
	for id, v := range s.Orders {
		out.Orders[id] = v
	}
	return out
}

// CountByStatus tallies orders per lifecycle stage.
func (s OrdersState) CountByStatus() map[OrderStatus]int {
	counts := make(map[OrderStatus]int, 4)
	for _, v := range s.Orders {
		counts[v.Status]++
	}
	return counts
}

// Orders returns the order-lifecycle projection: order.new opens a view,
// order.ack advances it, exactly one fill or reject closes it.
func Orders() Projection[OrdersState] {
	return Projection[OrdersState]{
		Name: "orders",
		Init: func() OrdersState {
			return OrdersState{Orders: make(map[string]OrderView)}
		},
		Apply: applyOrders,
	}
}

func applyOrders(s OrdersState, se storage.StoredEvent) (OrdersState, error) {
	switch se.Event.Type {
	case domain.EventOrderNew:
		o, err := domain.DecodeOrder(se.Event)
		if err != nil {
			return s, err
		}
		s.Orders[o.OrderID] = OrderView{
			OrderID: o.OrderID,
			Symbol:  o.Symbol,
			Side:    o.Side,
			Qty:     o.Qty,
			Status:  OrderStatusNew,
			TS:      o.T,
		}
		return s, nil

	case domain.EventOrderAck:
		a, err := domain.DecodeOrderAck(se.Event)
		if err != nil {
			return s, err
		}
		if v, ok := s.Orders[a.OrderID]; ok && v.Status == OrderStatusNew {
			v.Status = OrderStatusAcked
			v.Venue = a.Venue
			v.TS = a.T
			s.Orders[a.OrderID] = v
		}
		return s, nil

	case domain.EventOrderFill:
		f, err := domain.DecodeOrderFill(se.Event)
		if err != nil {
			return s, err
		}
		v, ok := s.Orders[f.OrderID]
		if !ok {
			v = OrderView{OrderID: f.OrderID, Symbol: f.Symbol, Side: f.Side, Qty: f.Qty}
		}
		v.Status = OrderStatusFilled
		v.FillPx = f.Px
		v.FillQty = f.Qty
		v.Fee = f.Fee
		v.Venue = f.Venue
		v.TS = f.T
		s.Orders[f.OrderID] = v
		return s, nil

	case domain.EventOrderReject:
		r, err := domain.DecodeOrderReject(se.Event)
		if err != nil {
			return s, err
		}
		v, ok := s.Orders[r.OrderID]
		if !ok {
			v = OrderView{OrderID: r.OrderID, Symbol: r.Symbol}
		}
		v.Status = OrderStatusRejected
		v.Reason = r.Reason
		v.Venue = r.Venue
		v.TS = r.T
		s.Orders[r.OrderID] = v
		return s, nil

	default:
		return s, nil
	}
}
