package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/execution"
)

// worker processes one symbol's ticks sequentially. Nothing else
// touches the symbol's strategy state or submits its orders, so a
// tick's derived events are always appended before the next tick is
// evaluated.
type worker struct {
	c       *Controller
	binding Binding
	symbol  string
	queue   chan domain.MarketTick

	mu        sync.Mutex
	suspended bool
	lastErr   string

	ticks  atomic.Uint64
	orders atomic.Uint64
}

func (w *worker) run() {
	defer w.c.workerWg.Done()

	for tick := range w.queue {
		w.c.metrics.SetTickQueueDepth(w.symbol, len(w.queue))
		// A suspended symbol keeps draining its queue so the feed
		// pump never blocks on it.
		if w.isSuspended() {
			continue
		}
		w.processTick(tick)
	}
}

func (w *worker) processTick(tick domain.MarketTick) {
	defer func() {
		if r := recover(); r != nil {
			w.c.logger.Error().Str("symbol", w.symbol).Interface("panic", r).Msg("symbol pipeline panicked")
			w.suspend(fmt.Sprintf("panic: %v", r))
			w.c.updateSymbolGauges()
		}
	}()

	w.ticks.Add(1)

	tickEv, err := domain.NewMarketTickEvent(tick.T, tick)
	if err != nil {
		w.c.metrics.RecordInvalidTick()
		w.c.logger.Debug().Err(err).Str("symbol", w.symbol).Msg("dropping invalid tick")
		return
	}

	// The venue prices against the latest mark, so a signal fired off
	// this tick executes at this tick's price.
	if m, ok := w.binding.Adapter.(marker); ok {
		m.SetMark(tick.Symbol, tick.Last)
	}

	batch := []domain.Event{tickEv}
	var order *domain.Order

	sig, err := w.binding.Strategy.OnTick(tick)
	if err != nil {
		w.c.metrics.RecordStrategyError(w.binding.Strategy.Name())
		w.c.logger.Warn().Err(err).Str("symbol", w.symbol).Str("strategy", w.binding.Strategy.Name()).Msg("strategy rejected tick")
	} else if sig != nil {
		w.c.metrics.RecordSignal(sig.Strategy, string(sig.Side))
		sigEv, err := domain.NewSignalEvent(sig.T, *sig)
		if err != nil {
			w.c.logger.Error().Err(err).Str("symbol", w.symbol).Msg("encoding signal failed")
		} else {
			o := domain.Order{
				OrderID: uuid.NewString(),
				T:       sig.T,
				Symbol:  sig.Symbol,
				Side:    sig.Side,
				Qty:     w.binding.Qty,
				Type:    domain.OrderTypeMarket,
				TIF:     domain.TIFIOC,
			}
			orderEv, err := domain.NewOrderEvent(o.T, o)
			if err != nil {
				w.c.logger.Error().Err(err).Str("symbol", w.symbol).Msg("encoding order failed")
				batch = append(batch, sigEv)
			} else {
				batch = append(batch, sigEv, orderEv)
				order = &o
			}
		}
	}

	// The tick and everything derived from it commit together, ahead
	// of any later tick for this symbol.
	if err := w.c.append(w.c.runCtx, batch...); err != nil {
		w.c.logger.Error().Err(err).Str("symbol", w.symbol).Msg("appending tick events failed")
		w.suspend(fmt.Sprintf("append failed: %v", err))
		w.c.updateSymbolGauges()
		return
	}

	if order == nil {
		return
	}
	w.orders.Add(1)

	// Register before submitting so the terminal event cannot race the
	// wait. The symbol holds here until the outcome is in the log.
	done := w.c.waiters.register(order.OrderID, w.c.clock.Now())
	if err := w.binding.Adapter.Submit(w.c.runCtx, *order); err != nil {
		w.c.waiters.cancel(order.OrderID)
		w.rejectUnsubmitted(*order, err)
		return
	}
	w.c.metrics.RecordOrderSubmitted()

	select {
	case <-done:
	case <-w.c.runCtx.Done():
	}
}

// rejectUnsubmitted closes out an order the venue never accepted. The
// order.new is already in the log, so a terminal event must follow it.
func (w *worker) rejectUnsubmitted(order domain.Order, cause error) {
	if errors.Is(cause, execution.ErrClosed) {
		w.c.logger.Debug().Str("symbol", w.symbol).Str("order_id", order.OrderID).Msg("venue closed before submit")
	} else {
		w.c.logger.Error().Err(cause).Str("symbol", w.symbol).Str("order_id", order.OrderID).Msg("order submit failed")
	}

	rej := domain.OrderReject{
		OrderID: order.OrderID,
		T:       w.c.clock.Now().UnixMilli(),
		Symbol:  order.Symbol,
		Reason:  fmt.Sprintf("submit failed: %v", cause),
	}
	ev, err := domain.NewOrderRejectEvent(rej.T, rej)
	if err != nil {
		w.c.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("encoding reject failed")
		return
	}
	if err := w.c.append(w.c.runCtx, ev); err != nil {
		w.c.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("appending reject failed")
		w.suspend(fmt.Sprintf("append failed: %v", err))
		w.c.updateSymbolGauges()
		return
	}
	w.c.metrics.RecordOrderOutcome("reject", 0)
}

func (w *worker) suspend(reason string) {
	w.mu.Lock()
	w.suspended = true
	w.lastErr = reason
	w.mu.Unlock()
}

func (w *worker) isSuspended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suspended
}

func (w *worker) status() SymbolStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return SymbolStatus{
		Binding:   w.binding.Name,
		Suspended: w.suspended,
		LastError: w.lastErr,
		Ticks:     w.ticks.Load(),
		Orders:    w.orders.Load(),
	}
}
