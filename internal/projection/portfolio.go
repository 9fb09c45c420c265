package projection

import (
	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// PortfolioState is the accumulated portfolio view: per-symbol positions,
// cash, fees and margin. Inventory moves on fills only; order lifecycle
// lives in the orders projection.
type PortfolioState struct {
	Positions map[string]domain.Position
	Cash      float64
	FeesPaid  float64
	Margin    float64
	LastTS    int64 // business timestamp of the newest applied payload
}

// ClonePortfolioState deep-copies a portfolio state.
func ClonePortfolioState(s PortfolioState) PortfolioState {
	out := s
	out.Positions = make(map[string]domain.Position, len(s.Positions))
	for sym, pos := range s.Positions {
		out.Positions[sym] = pos
	}
	return out
}

// Portfolio returns the positions/portfolio projection.
//
// Fills adjust inventory via the average-price method, ticks refresh marks,
// account events move cash and margin, and a portfolio.snapshot replaces the
// entire positions map (checkpoint): incremental events continue from the
// restored state.
func Portfolio() Projection[PortfolioState] {
	return Projection[PortfolioState]{
		Name: "portfolio",
		Init: func() PortfolioState {
			return PortfolioState{Positions: make(map[string]domain.Position)}
		},
		Apply: applyPortfolio,
	}
}

func applyPortfolio(s PortfolioState, se storage.StoredEvent) (PortfolioState, error) {
	switch se.Event.Type {
	case domain.EventMarketTick:
		tick, err := domain.DecodeMarketTick(se.Event)
		if err != nil {
			return s, err
		}
		if pos, ok := s.Positions[tick.Symbol]; ok {
			s.Positions[tick.Symbol] = mark(pos, tick.Last)
		}
		s.LastTS = tick.T
		return s, nil

	case domain.EventOrderFill:
		fill, err := domain.DecodeOrderFill(se.Event)
		if err != nil {
			return s, err
		}
		pos, ok := s.Positions[fill.Symbol]
		if !ok {
			pos = domain.Position{Symbol: fill.Symbol}
		}
		s.Positions[fill.Symbol] = applyFill(pos, fill)

		notional := fill.Qty * fill.Px
		if fill.Side == domain.SideBuy {
			s.Cash -= notional
		} else {
			s.Cash += notional
		}
		s.Cash -= fill.Fee
		s.FeesPaid += fill.Fee
		s.LastTS = fill.T
		return s, nil

	case domain.EventSnapshot:
		snap, err := domain.DecodeSnapshot(se.Event)
		if err != nil {
			return s, err
		}
		// Checkpoint: the snapshot replaces, never merges.
		s.Positions = make(map[string]domain.Position, len(snap.Positions))
		for sym, pos := range snap.Positions {
			s.Positions[sym] = pos
		}
		s.Cash = snap.Cash
		s.FeesPaid = snap.FeesPaid
		s.LastTS = snap.T
		return s, nil

	case domain.EventBalanceAdjusted:
		adj, err := domain.DecodeBalanceAdjusted(se.Event)
		if err != nil {
			return s, err
		}
		s.Cash += adj.Delta
		s.LastTS = adj.T
		return s, nil

	case domain.EventMarginUpdated:
		m, err := domain.DecodeMarginUpdated(se.Event)
		if err != nil {
			return s, err
		}
		s.Margin = m.Margin
		s.LastTS = m.T
		return s, nil

	case domain.EventTransfer:
		tr, err := domain.DecodeTransfer(se.Event)
		if err != nil {
			return s, err
		}
		if tr.Direction == domain.TransferDeposit {
			s.Cash += tr.Amount
		} else {
			s.Cash -= tr.Amount
		}
		s.LastTS = tr.T
		return s, nil

	case domain.EventSignal, domain.EventOrderNew, domain.EventOrderAck, domain.EventOrderReject:
		// No inventory effect.
		return s, nil

	default:
		// Unknown event types pass through untouched.
		return s, nil
	}
}

// applyFill moves one position by one execution using the average-price
// method: extensions re-weight the entry price, reductions realize
// (px - avgPx) * closedQty signed by the position's direction, and crossing
// through flat re-opens the remainder at the fill price.
func applyFill(p domain.Position, f domain.OrderFill) domain.Position {
	signed := f.Qty
	if f.Side == domain.SideSell {
		signed = -f.Qty
	}

	switch {
	case p.Pos == 0 || (p.Pos > 0) == (signed > 0):
		// Opening or extending.
		p.AvgPx = weightedAvg(p.AvgPx, absf(p.Pos), f.Px, f.Qty)
		p.Pos += signed

	default:
		// Reducing, possibly through flat.
		closed := minf(absf(p.Pos), f.Qty)
		direction := 1.0
		if p.Pos < 0 {
			direction = -1.0
		}
		realized := (f.Px - p.AvgPx) * closed * direction
		p.GrossRealized += realized
		p.NetRealized += realized
		p.Pos += signed

		if p.Pos == 0 {
			p.AvgPx = 0
		} else if (p.Pos > 0) != (direction > 0) {
			// Flipped through flat: remainder opens at the fill price.
			p.AvgPx = f.Px
		}
	}

	// Fees reduce the net take regardless of direction.
	p.NetRealized -= f.Fee
	p.Realized = p.NetRealized

	return mark(p, f.Px)
}

// mark refreshes price-derived fields from the latest trade price.
func mark(p domain.Position, px float64) domain.Position {
	p.Px = px
	p.Unrealized = (px - p.AvgPx) * p.Pos
	p.Notional = px * p.Pos
	return p
}

// SnapshotFromState derives a checkpoint payload from a portfolio state.
func SnapshotFromState(s PortfolioState, t int64) domain.PortfolioSnapshot {
	snap := domain.PortfolioSnapshot{
		T:         t,
		Positions: make(map[string]domain.Position, len(s.Positions)),
		Cash:      s.Cash,
		FeesPaid:  s.FeesPaid,
	}
	for sym, pos := range s.Positions {
		snap.Positions[sym] = pos
		snap.Realized += pos.Realized
		snap.Unrealized += pos.Unrealized
		snap.NAV += pos.Notional
	}
	snap.NAV += s.Cash
	snap.PnL = snap.Realized + snap.Unrealized
	return snap
}

// PointFromState derives one equity-curve row from a portfolio state.
func PointFromState(s PortfolioState, t int64) domain.PortfolioPoint {
	snap := SnapshotFromState(s, t)
	return domain.PortfolioPoint{
		TimestampMs: t,
		NAV:         snap.NAV,
		PnL:         snap.PnL,
		Realized:    snap.Realized,
		Unrealized:  snap.Unrealized,
		Cash:        snap.Cash,
		FeesPaid:    snap.FeesPaid,
	}
}

func weightedAvg(p1, q1, p2, q2 float64) float64 {
	if q1+q2 == 0 {
		return 0
	}
	return (p1*q1 + p2*q2) / (q1 + q2)
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
