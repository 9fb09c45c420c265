package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// Helper to create a tick event with a fixed payload.
func makeTickEvent(t *testing.T, symbol string, last float64) domain.Event {
	t.Helper()
	ev, err := domain.NewMarketTickEvent(1000, domain.MarketTick{T: 1000, Symbol: symbol, Last: last})
	if err != nil {
		t.Fatalf("make tick event: %v", err)
	}
	return ev
}

func TestEventStore_AppendAssignsSequence(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, makeTickEvent(t, "SIM", 100+float64(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := store.Read(ctx, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, se := range events {
		if se.Seq != uint64(i+1) {
			t.Errorf("event %d has seq %d, want %d", i, se.Seq, i+1)
		}
	}

	last, err := store.LastSeq(ctx)
	if err != nil {
		t.Fatalf("last seq: %v", err)
	}
	if last != 5 {
		t.Errorf("LastSeq = %d, want 5", last)
	}
}

func TestEventStore_ReadSinceSeq(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Append(ctx, makeTickEvent(t, "SIM", 100)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tail, err := store.Read(ctx, 2)
	if err != nil {
		t.Fatalf("read since 2: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected 2 events after seq 2, got %d", len(tail))
	}
	if tail[0].Seq != 3 || tail[1].Seq != 4 {
		t.Errorf("tail sequences = %d, %d; want 3, 4", tail[0].Seq, tail[1].Seq)
	}

	empty, err := store.Read(ctx, 99)
	if err != nil {
		t.Fatalf("read past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("read past end returned %d events", len(empty))
	}
}

func TestEventStore_DuplicateID(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	ev := makeTickEvent(t, "SIM", 100)
	if err := store.Append(ctx, ev); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := store.Append(ctx, ev); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	// Intra-batch duplicate fails the whole batch.
	dup := makeTickEvent(t, "SIM", 101)
	if err := store.Append(ctx, dup, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch dup, got %v", err)
	}
	events, _ := store.Read(ctx, 0)
	if len(events) != 1 {
		t.Errorf("failed batch must not partially append: log has %d events", len(events))
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.Append(ctx, domain.Event{ID: "", Type: domain.EventMarketTick})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing id, got %v", err)
	}

	err = store.Append(ctx, domain.Event{ID: "x", Type: "order.cancel"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}

// Concurrent producers: total count is exact and every producer's own events
// appear in its submission order, interleaving aside.
func TestEventStore_ConcurrentProducersPreserveOwnOrder(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				symbol := fmt.Sprintf("SYM-%d", p)
				ev, err := domain.NewMarketTickEvent(int64(i), domain.MarketTick{
					T: int64(i), Symbol: symbol, Last: float64(i + 1),
				})
				if err != nil {
					t.Errorf("producer %d make event: %v", p, err)
					return
				}
				if err := store.Append(ctx, ev); err != nil {
					t.Errorf("producer %d append %d: %v", p, i, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	events, err := store.Read(ctx, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, len(events))
	}

	// Sequences are dense and ascending.
	for i, se := range events {
		if se.Seq != uint64(i+1) {
			t.Fatalf("gap in sequence at index %d: seq %d", i, se.Seq)
		}
	}

	// Per-producer submission order survives in the total order.
	lastPrice := make(map[string]float64)
	for _, se := range events {
		tick, err := domain.DecodeMarketTick(se.Event)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tick.Last <= lastPrice[tick.Symbol] {
			t.Fatalf("producer %s reordered: price %v after %v", tick.Symbol, tick.Last, lastPrice[tick.Symbol])
		}
		lastPrice[tick.Symbol] = tick.Last
	}
}

// A read taken while appends are in flight sees a consistent prefix of
// whole batches, never a torn one.
func TestEventStore_ReadNeverTearsBatches(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			batch := []domain.Event{
				makeTickEvent(t, "A", float64(i+1)),
				makeTickEvent(t, "B", float64(i+1)),
			}
			if err := store.Append(ctx, batch...); err != nil {
				t.Errorf("append batch %d: %v", i, err)
				return
			}
		}
	}()

	for {
		events, err := store.Read(ctx, 0)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(events)%2 != 0 {
			t.Fatalf("torn batch visible: %d events", len(events))
		}
		select {
		case <-done:
			return
		default:
		}
	}
}
