package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/execution"
	"github.com/dgrah50/rx-trader-sub002/internal/feed"
	"github.com/dgrah50/rx-trader-sub002/internal/projection"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
	"github.com/dgrah50/rx-trader-sub002/internal/storage/memory"
	"github.com/dgrah50/rx-trader-sub002/internal/strategy"
)

func tickAt(symbol string, t int64, px float64) domain.MarketTick {
	return domain.MarketTick{T: t, Symbol: symbol, Last: px}
}

func tickSeries(symbol string, startMs int64, prices ...float64) []domain.MarketTick {
	ticks := make([]domain.MarketTick, len(prices))
	for i, px := range prices {
		ticks[i] = tickAt(symbol, startMs+int64(i)*1000, px)
	}
	return ticks
}

// census reads the full log and groups events by type.
func census(t *testing.T, store storage.EventStore) map[domain.EventType][]storage.StoredEvent {
	t.Helper()
	stored, err := store.Read(context.Background(), 0)
	require.NoError(t, err)

	byType := make(map[domain.EventType][]storage.StoredEvent)
	for _, se := range stored {
		byType[se.Event.Type] = append(byType[se.Event.Type], se)
	}
	return byType
}

func waitForTicks(t *testing.T, c *Controller, symbol string, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status().Symbols[symbol].Ticks >= n
	}, 10*time.Second, 5*time.Millisecond, "symbol %s never processed %d ticks", symbol, n)
}

// waitForStoredTicks waits until n market.tick events are in the log,
// not merely picked up by a worker.
func waitForStoredTicks(t *testing.T, store storage.EventStore, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		stored, err := store.Read(context.Background(), 0)
		if err != nil {
			return false
		}
		count := 0
		for _, se := range stored {
			if se.Event.Type == domain.EventMarketTick {
				count++
			}
		}
		return count >= n
	}, 10*time.Second, 5*time.Millisecond, "log never reached %d ticks", n)
}

// slowStore delays every append to force backpressure upstream.
type slowStore struct {
	storage.EventStore
	delay time.Duration
}

func (s *slowStore) Append(ctx context.Context, events ...domain.Event) error {
	time.Sleep(s.delay)
	return s.EventStore.Append(ctx, events...)
}

// explodingStrategy panics on one symbol and delegates the rest.
type explodingStrategy struct {
	strategy.Strategy
	bad string
}

func (s *explodingStrategy) OnTick(tick domain.MarketTick) (*domain.Signal, error) {
	if tick.Symbol == s.bad {
		panic("window state corrupted")
	}
	return s.Strategy.OnTick(tick)
}

func TestController_MomentumEndToEnd(t *testing.T) {
	store := memory.NewEventStore()
	clock := domain.NewManualClock(time.UnixMilli(1_700_000_000_000))
	paper := execution.NewPaper("paper", execution.WithClock(clock))
	src := feed.NewScripted(tickSeries("SIM", 1000, 104, 103, 102, 103, 104, 105))

	c, err := New(Options{
		Store: store,
		Bindings: []Binding{{
			Name:     "sim-momentum",
			Feed:     src,
			Strategy: strategy.NewMomentum(2, 3),
			Adapter:  paper,
			Symbols:  []string{"SIM"},
			Qty:      1,
		}},
		Clock: clock,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	waitForTicks(t, c, "SIM", 6)
	require.NoError(t, c.Stop())

	byType := census(t, store)
	require.Len(t, byType[domain.EventMarketTick], 6)
	require.Len(t, byType[domain.EventSignal], 1)
	require.Len(t, byType[domain.EventOrderNew], 1)
	require.Len(t, byType[domain.EventOrderAck], 1)
	require.Len(t, byType[domain.EventOrderFill], 1)
	require.Empty(t, byType[domain.EventOrderReject])
	require.Len(t, byType[domain.EventSnapshot], 1)

	sig, err := domain.DecodeSignal(byType[domain.EventSignal][0].Event)
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.Equal(t, "SIM", sig.Symbol)
	assert.Equal(t, int64(5000), sig.T)

	order, err := domain.DecodeOrder(byType[domain.EventOrderNew][0].Event)
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, order.Side)
	assert.Equal(t, 1.0, order.Qty)
	assert.Equal(t, domain.OrderTypeMarket, order.Type)

	fillSE := byType[domain.EventOrderFill][0]
	fill, err := domain.DecodeOrderFill(fillSE.Event)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, fill.OrderID)
	assert.Equal(t, 104.0, fill.Px, "fill prices from the mark set by the crossing tick")
	assert.Equal(t, 1.0, fill.Qty)

	// Everything derived from the crossing tick committed before the
	// next tick was admitted.
	var lastTickSeq uint64
	for _, se := range byType[domain.EventMarketTick] {
		tick, err := domain.DecodeMarketTick(se.Event)
		require.NoError(t, err)
		if tick.T == 6000 {
			lastTickSeq = se.Seq
		}
	}
	require.NotZero(t, lastTickSeq)
	assert.Less(t, byType[domain.EventOrderNew][0].Seq, fillSE.Seq)
	assert.Less(t, fillSE.Seq, lastTickSeq)

	state, _, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	pos := state.Positions["SIM"]
	assert.Equal(t, 1.0, pos.Pos)
	assert.Equal(t, 104.0, pos.AvgPx)
	assert.Equal(t, 105.0, pos.Px, "final tick refreshes the mark")
	assert.Equal(t, 1.0, pos.Unrealized)
	assert.Equal(t, -104.0, state.Cash)

	orders, err := c.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, projection.OrderStatusFilled, orders[order.OrderID].Status)
	assert.Equal(t, 104.0, orders[order.OrderID].FillPx)
}

func TestController_SlowStoreDrainsEverything(t *testing.T) {
	base := memory.NewEventStore()
	store := &slowStore{EventStore: base, delay: time.Millisecond}

	cycle := []float64{100, 102, 104, 106, 104, 102, 100, 98}
	var prices []float64
	for i := 0; i < 15; i++ {
		prices = append(prices, cycle...)
	}
	src := feed.NewScripted(tickSeries("SIM", 1000, prices...))
	paper := execution.NewPaper("paper")

	c, err := New(Options{
		Store: store,
		Bindings: []Binding{{
			Name:     "sim-momentum",
			Feed:     src,
			Strategy: strategy.NewMomentum(2, 3),
			Adapter:  paper,
			Symbols:  []string{"SIM"},
			Qty:      1,
		}},
		QueueDepth: 4,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	waitForTicks(t, c, "SIM", uint64(len(prices)))
	require.NoError(t, c.Stop())

	byType := census(t, base)
	require.Len(t, byType[domain.EventMarketTick], len(prices), "no tick dropped under a slow store")

	signals := len(byType[domain.EventSignal])
	require.GreaterOrEqual(t, signals, 10, "zigzag series crosses repeatedly")
	require.Len(t, byType[domain.EventOrderNew], signals)
	require.Len(t, byType[domain.EventOrderAck], signals)
	require.Empty(t, byType[domain.EventOrderReject])

	// Exactly one terminal per submitted order.
	terminals := make(map[string]int)
	for _, se := range byType[domain.EventOrderFill] {
		fill, err := domain.DecodeOrderFill(se.Event)
		require.NoError(t, err)
		terminals[fill.OrderID]++
	}
	for _, se := range byType[domain.EventOrderNew] {
		order, err := domain.DecodeOrder(se.Event)
		require.NoError(t, err)
		assert.Equal(t, 1, terminals[order.OrderID])
	}

	// Produced count equals appended count: ticks, one signal/order/ack/
	// fill chain per crossing, one final checkpoint.
	stored, err := base.Read(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stored, len(prices)+4*signals+1)
}

func TestController_PanickingSymbolIsIsolated(t *testing.T) {
	store := memory.NewEventStore()
	paper := execution.NewPaper("paper")

	ticks := []domain.MarketTick{
		tickAt("GOOD", 1000, 104),
		tickAt("BAD", 1100, 50),
		tickAt("GOOD", 2000, 103),
		tickAt("BAD", 2100, 50),
		tickAt("GOOD", 3000, 102),
		tickAt("GOOD", 4000, 103),
		tickAt("GOOD", 5000, 104),
		tickAt("GOOD", 6000, 105),
	}
	src := feed.NewScripted(ticks)

	c, err := New(Options{
		Store: store,
		Bindings: []Binding{{
			Name:     "mixed",
			Feed:     src,
			Strategy: &explodingStrategy{Strategy: strategy.NewMomentum(2, 3), bad: "BAD"},
			Adapter:  paper,
			Symbols:  []string{"GOOD", "BAD"},
			Qty:      1,
		}},
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	waitForTicks(t, c, "GOOD", 6)
	require.Eventually(t, func() bool {
		return c.Status().Symbols["BAD"].Suspended
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	status := c.Status()
	assert.False(t, status.Running)
	assert.False(t, status.Symbols["GOOD"].Suspended)
	assert.True(t, status.Symbols["BAD"].Suspended)
	assert.Contains(t, status.Symbols["BAD"].LastError, "panic")

	// The healthy symbol ran its full trace and traded.
	byType := census(t, store)
	require.Len(t, byType[domain.EventMarketTick], 6)
	for _, se := range byType[domain.EventMarketTick] {
		tick, err := domain.DecodeMarketTick(se.Event)
		require.NoError(t, err)
		assert.Equal(t, "GOOD", tick.Symbol)
	}
	require.Len(t, byType[domain.EventSignal], 1)
	require.Len(t, byType[domain.EventOrderFill], 1)
}

func TestController_SnapshotMatchesRebuild(t *testing.T) {
	store := memory.NewEventStore()
	timeseries := memory.NewPortfolioTimeseriesStore()
	clock := domain.NewManualClock(time.UnixMilli(1_700_000_000_000))
	paper := execution.NewPaper("paper", execution.WithClock(clock))
	src := feed.NewScripted(tickSeries("SIM", 1000, 104, 103, 102, 103, 104, 105))

	c, err := New(Options{
		Store: store,
		Bindings: []Binding{{
			Name:     "sim-momentum",
			Feed:     src,
			Strategy: strategy.NewMomentum(2, 3),
			Adapter:  paper,
			Symbols:  []string{"SIM"},
			Qty:      1,
		}},
		Clock:      clock,
		Timeseries: timeseries,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	waitForStoredTicks(t, store, 6)

	require.NoError(t, c.Snapshot(context.Background()))
	clock.Advance(time.Second)
	require.NoError(t, c.Stop())

	byType := census(t, store)
	require.Len(t, byType[domain.EventSnapshot], 2)

	points, err := timeseries.GetByTimeRange(context.Background(), 0, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, points[0].NAV, points[1].NAV)

	// The live view and a cold replay agree, and replay is stable.
	live, err := c.Portfolio(context.Background())
	require.NoError(t, err)
	rebuilt, seq, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	again, seq2, err := c.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rebuilt.Positions, again.Positions)
	assert.Equal(t, seq, seq2)
	assert.Equal(t, live.Positions, rebuilt.Positions)
	assert.Equal(t, live.Cash, rebuilt.Cash)
}

func TestNew_Validation(t *testing.T) {
	store := memory.NewEventStore()
	paper := execution.NewPaper("paper")
	src := feed.NewScripted(nil)
	mom := strategy.NewMomentum(2, 3)

	valid := Binding{Name: "a", Feed: src, Strategy: mom, Adapter: paper, Symbols: []string{"SIM"}, Qty: 1}

	_, err := New(Options{Bindings: []Binding{valid}})
	require.ErrorIs(t, err, ErrMissingStore)

	_, err = New(Options{Store: store})
	require.ErrorIs(t, err, ErrNoBindings)

	second := valid
	second.Name = "b"
	_, err = New(Options{Store: store, Bindings: []Binding{valid, second}})
	require.ErrorIs(t, err, ErrDuplicateSymbol)

	broken := valid
	broken.Qty = 0
	_, err = New(Options{Store: store, Bindings: []Binding{broken}})
	require.Error(t, err)

	broken = valid
	broken.Symbols = nil
	_, err = New(Options{Store: store, Bindings: []Binding{broken}})
	require.Error(t, err)
}

func TestController_StartTwiceFails(t *testing.T) {
	store := memory.NewEventStore()
	paper := execution.NewPaper("paper")
	src := feed.NewScripted(tickSeries("SIM", 1000, 100, 101))

	c, err := New(Options{
		Store: store,
		Bindings: []Binding{{
			Name:     "sim",
			Feed:     src,
			Strategy: strategy.NewMomentum(2, 3),
			Adapter:  paper,
			Symbols:  []string{"SIM"},
			Qty:      1,
		}},
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop(), "stop is idempotent")
}
