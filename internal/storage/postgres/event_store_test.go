package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

func makeTickEvent(t *testing.T, symbol string, last float64) domain.Event {
	t.Helper()
	ev, err := domain.NewMarketTickEvent(1000, domain.MarketTick{T: 1000, Symbol: symbol, Last: last})
	require.NoError(t, err)
	return ev
}

func TestEventStore_AppendAndRead(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(pool)
	ctx := context.Background()

	first := makeTickEvent(t, "SIM", 100)
	second := makeTickEvent(t, "SIM", 101)
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	events, err := store.Read(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, uint64(1), events[0].Seq)
	require.Equal(t, uint64(2), events[1].Seq)
	require.Equal(t, first.ID, events[0].Event.ID)
	require.Equal(t, domain.EventMarketTick, events[0].Event.Type)

	// Payload survives the JSONB roundtrip.
	tick, err := domain.DecodeMarketTick(events[1].Event)
	require.NoError(t, err)
	require.Equal(t, 101.0, tick.Last)

	last, err := store.LastSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)
}

func TestEventStore_ReadSinceSeq(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(pool)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, makeTickEvent(t, "SIM", 100+float64(i))))
	}

	tail, err := store.Read(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, uint64(4), tail[0].Seq)
	require.Equal(t, uint64(5), tail[1].Seq)

	empty, err := store.Read(ctx, 100)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestEventStore_BatchIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(pool)
	ctx := context.Background()

	good := makeTickEvent(t, "SIM", 100)
	require.NoError(t, store.Append(ctx, good))

	// Batch containing an already-appended id rolls back entirely.
	fresh := makeTickEvent(t, "SIM", 101)
	err := store.Append(ctx, fresh, good)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	events, err := store.Read(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestEventStore_ConcurrentProducersPreserveOwnOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(pool)
	ctx := context.Background()

	const producers = 4
	const perProducer = 20

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ev, err := domain.NewMarketTickEvent(int64(i), domain.MarketTick{
					T: int64(i), Symbol: fmt.Sprintf("SYM-%d", p), Last: float64(i + 1),
				})
				if err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
				if err := store.Append(ctx, ev); err != nil {
					t.Errorf("producer %d append: %v", p, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	events, err := store.Read(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, producers*perProducer)

	// Dense ascending sequences, and per-producer order intact.
	lastPrice := make(map[string]float64)
	for i, se := range events {
		require.Equal(t, uint64(i+1), se.Seq, "sequence gap at index %d", i)
		tick, err := domain.DecodeMarketTick(se.Event)
		require.NoError(t, err)
		require.Greater(t, tick.Last, lastPrice[tick.Symbol],
			"producer %s reordered at seq %d", tick.Symbol, se.Seq)
		lastPrice[tick.Symbol] = tick.Last
	}
}
