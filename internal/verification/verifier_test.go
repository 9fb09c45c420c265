package verification

import (
	"context"
	"testing"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage/memory"
)

func simPosition() domain.Position {
	return domain.Position{
		Symbol:        "SIM",
		Pos:           2,
		AvgPx:         100,
		Px:            105,
		Unrealized:    10,
		Realized:      -0.1,
		NetRealized:   -0.1,
		GrossRealized: 0,
		Notional:      210,
	}
}

func simSnapshot() domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		T:          2500,
		Positions:  map[string]domain.Position{"SIM": simPosition()},
		NAV:        9.9,
		PnL:        9.9,
		Realized:   -0.1,
		Unrealized: 10,
		Cash:       -200.1,
		FeesPaid:   0.1,
	}
}

func TestCompareSnapshots_ExactMatch(t *testing.T) {
	divergences := CompareSnapshots(simSnapshot(), simSnapshot())
	if len(divergences) != 0 {
		t.Errorf("Expected 0 divergences, got %d: %v", len(divergences), divergences)
	}
}

func TestCompareSnapshots_NAVDivergence(t *testing.T) {
	stored := simSnapshot()
	derived := simSnapshot()
	derived.NAV = 10.9

	divergences := CompareSnapshots(stored, derived)
	if len(divergences) != 1 {
		t.Fatalf("Expected 1 divergence, got %d: %v", len(divergences), divergences)
	}
	if divergences[0].Field != "NAV" {
		t.Errorf("Expected NAV divergence, got %s", divergences[0].Field)
	}
	if divergences[0].Expected != 9.9 || divergences[0].Actual != 10.9 {
		t.Errorf("Expected 9.9 vs 10.9, got %v vs %v", divergences[0].Expected, divergences[0].Actual)
	}
}

func TestCompareSnapshots_WithinTolerance(t *testing.T) {
	stored := simSnapshot()
	derived := simSnapshot()
	derived.NAV += 1e-8
	derived.Cash -= 1e-8

	divergences := CompareSnapshots(stored, derived)
	if len(divergences) != 0 {
		t.Errorf("Expected sub-tolerance drift to match, got %d divergences: %v", len(divergences), divergences)
	}
}

func TestCompareSnapshots_MissingPosition(t *testing.T) {
	stored := simSnapshot()
	derived := simSnapshot()
	derived.Positions = map[string]domain.Position{}

	divergences := CompareSnapshots(stored, derived)
	if len(divergences) != 1 {
		t.Fatalf("Expected 1 divergence, got %d: %v", len(divergences), divergences)
	}
	if divergences[0].Field != "Positions[SIM]" {
		t.Errorf("Expected Positions[SIM] divergence, got %s", divergences[0].Field)
	}
	if divergences[0].Actual != nil {
		t.Errorf("Expected nil replayed position, got %v", divergences[0].Actual)
	}
}

func TestCompareSnapshots_PositionFieldDivergence(t *testing.T) {
	stored := simSnapshot()
	derived := simSnapshot()
	pos := derived.Positions["SIM"]
	pos.Pos = 3
	derived.Positions["SIM"] = pos

	divergences := CompareSnapshots(stored, derived)
	if len(divergences) != 1 {
		t.Fatalf("Expected 1 divergence, got %d: %v", len(divergences), divergences)
	}
	if divergences[0].Field != "Positions[SIM].Pos" {
		t.Errorf("Expected Positions[SIM].Pos divergence, got %s", divergences[0].Field)
	}
}

// seedSession appends a session whose checkpoints were derived from the
// events before them: buy 2 SIM at 100 (fee 0.1), mark to 105, checkpoint,
// then sell 1 at 110 (fee 0.05) and checkpoint again.
func seedSession(t *testing.T, store *memory.EventStore) {
	t.Helper()
	ctx := context.Background()

	tick1, err := domain.NewMarketTickEvent(1000, domain.MarketTick{T: 1000, Symbol: "SIM", Last: 100})
	if err != nil {
		t.Fatalf("tick event: %v", err)
	}
	fill1, err := domain.NewOrderFillEvent(1100, domain.OrderFill{
		OrderID: "ord-1", T: 1100, Symbol: "SIM", Side: domain.SideBuy,
		Qty: 2, Px: 100, Fee: 0.1, Venue: "paper",
	})
	if err != nil {
		t.Fatalf("fill event: %v", err)
	}
	tick2, err := domain.NewMarketTickEvent(2000, domain.MarketTick{T: 2000, Symbol: "SIM", Last: 105})
	if err != nil {
		t.Fatalf("tick event: %v", err)
	}
	snap1, err := domain.NewSnapshotEvent(2500, simSnapshot())
	if err != nil {
		t.Fatalf("snapshot event: %v", err)
	}
	fill2, err := domain.NewOrderFillEvent(3000, domain.OrderFill{
		OrderID: "ord-2", T: 3000, Symbol: "SIM", Side: domain.SideSell,
		Qty: 1, Px: 110, Fee: 0.05, Venue: "paper",
	})
	if err != nil {
		t.Fatalf("fill event: %v", err)
	}
	snap2, err := domain.NewSnapshotEvent(3500, domain.PortfolioSnapshot{
		T: 3500,
		Positions: map[string]domain.Position{"SIM": {
			Symbol:        "SIM",
			Pos:           1,
			AvgPx:         100,
			Px:            110,
			Unrealized:    10,
			Realized:      9.85,
			NetRealized:   9.85,
			GrossRealized: 10,
			Notional:      110,
		}},
		NAV:        19.85,
		PnL:        19.85,
		Realized:   9.85,
		Unrealized: 10,
		Cash:       -90.15,
		FeesPaid:   0.15,
	})
	if err != nil {
		t.Fatalf("snapshot event: %v", err)
	}

	if err := store.Append(ctx, tick1, fill1, tick2, snap1, fill2, snap2); err != nil {
		t.Fatalf("seed log: %v", err)
	}
}

func TestVerify_CleanLog(t *testing.T) {
	store := memory.NewEventStore()
	seedSession(t, store)

	report, err := New(store).Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if report.Events != 6 {
		t.Errorf("Expected 6 events, got %d", report.Events)
	}
	if report.LastSeq != 6 {
		t.Errorf("Expected last seq 6, got %d", report.LastSeq)
	}
	if !report.Deterministic {
		t.Error("Expected deterministic rebuild")
	}
	if report.TotalSnapshots != 2 || report.MatchedSnapshots != 2 || report.DivergentSnapshots != 0 {
		t.Errorf("Expected 2/2 checkpoints matched, got %d/%d (%d divergent)",
			report.MatchedSnapshots, report.TotalSnapshots, report.DivergentSnapshots)
	}
	for _, check := range report.Checks {
		if !check.Match {
			t.Errorf("Checkpoint seq %d diverged: %v", check.Seq, check.Divergences)
		}
	}
	if !report.Clean() {
		t.Error("Expected a clean report")
	}
}

func TestVerify_CorruptCheckpoint(t *testing.T) {
	store := memory.NewEventStore()
	ctx := context.Background()

	tick1, err := domain.NewMarketTickEvent(1000, domain.MarketTick{T: 1000, Symbol: "SIM", Last: 100})
	if err != nil {
		t.Fatalf("tick event: %v", err)
	}
	fill1, err := domain.NewOrderFillEvent(1100, domain.OrderFill{
		OrderID: "ord-1", T: 1100, Symbol: "SIM", Side: domain.SideBuy,
		Qty: 2, Px: 100, Fee: 0.1, Venue: "paper",
	})
	if err != nil {
		t.Fatalf("fill event: %v", err)
	}
	tick2, err := domain.NewMarketTickEvent(2000, domain.MarketTick{T: 2000, Symbol: "SIM", Last: 105})
	if err != nil {
		t.Fatalf("tick event: %v", err)
	}

	// Cash and NAV are both off by one: a checkpoint no replay could produce.
	corrupt := simSnapshot()
	corrupt.Cash = -199.1
	corrupt.NAV = 10.9
	snap, err := domain.NewSnapshotEvent(2500, corrupt)
	if err != nil {
		t.Fatalf("snapshot event: %v", err)
	}

	if err := store.Append(ctx, tick1, fill1, tick2, snap); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	report, err := New(store).Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if report.TotalSnapshots != 1 || report.DivergentSnapshots != 1 {
		t.Fatalf("Expected 1 divergent checkpoint, got %d/%d", report.DivergentSnapshots, report.TotalSnapshots)
	}
	if report.Clean() {
		t.Error("Expected a dirty report")
	}
	if !report.Deterministic {
		t.Error("Rebuild should still be deterministic with a corrupt checkpoint")
	}

	check := report.Checks[0]
	if check.Seq != 4 {
		t.Errorf("Expected divergence at seq 4, got %d", check.Seq)
	}
	fields := make(map[string]bool, len(check.Divergences))
	for _, d := range check.Divergences {
		fields[d.Field] = true
	}
	if !fields["NAV"] || !fields["Cash"] {
		t.Errorf("Expected NAV and Cash divergences, got %v", check.Divergences)
	}
	if len(check.Divergences) != 2 {
		t.Errorf("Expected exactly 2 divergent fields, got %d: %v", len(check.Divergences), check.Divergences)
	}
}

func TestVerify_EmptyLog(t *testing.T) {
	store := memory.NewEventStore()

	report, err := New(store).Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if report.Events != 0 || report.LastSeq != 0 || report.TotalSnapshots != 0 {
		t.Errorf("Expected an empty report, got %+v", report)
	}
	if !report.Clean() {
		t.Error("An empty log verifies clean")
	}
}
