package domain

// Position is the running inventory state for one symbol.
type Position struct {
	Symbol        string  `json:"symbol"`
	Pos           float64 `json:"pos"`           // signed quantity, negative = short
	AvgPx         float64 `json:"avgPx"`         // average entry price of the open quantity
	Px            float64 `json:"px"`            // last mark price
	Unrealized    float64 `json:"unrealized"`    // (px - avgPx) * pos
	Realized      float64 `json:"realized"`      // lifetime realized PnL net of fees
	NetRealized   float64 `json:"netRealized"`   // grossRealized - fees
	GrossRealized float64 `json:"grossRealized"` // realized PnL before fees
	Notional      float64 `json:"notional"`      // px * pos
}

// PortfolioSnapshot is a checkpoint of the full portfolio state. Applying it
// to a projection replaces the positions map wholesale; incremental events
// continue from the restored state.
type PortfolioSnapshot struct {
	T          int64               `json:"t"`
	Positions  map[string]Position `json:"positions"`
	NAV        float64             `json:"nav"`
	PnL        float64             `json:"pnl"`
	Realized   float64             `json:"realized"`
	Unrealized float64             `json:"unrealized"`
	Cash       float64             `json:"cash"`
	FeesPaid   float64             `json:"feesPaid"`
}

// PortfolioPoint is one row of the analytics equity curve.
type PortfolioPoint struct {
	TimestampMs int64
	NAV         float64
	PnL         float64
	Realized    float64
	Unrealized  float64
	Cash        float64
	FeesPaid    float64
}

// NewSnapshotEvent wraps a portfolio snapshot in an envelope.
func NewSnapshotEvent(ts int64, s PortfolioSnapshot) (Event, error) {
	return newEvent(EventSnapshot, ts, s)
}

// DecodeSnapshot unmarshals a portfolio.snapshot payload.
func DecodeSnapshot(ev Event) (PortfolioSnapshot, error) {
	return decodePayload[PortfolioSnapshot](ev, EventSnapshot)
}
