// Package main rebuilds the portfolio and order projections from the
// event log and verifies the log: replay must be deterministic, and every
// stored checkpoint must match the state replayed from the events before it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/projection"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
	"github.com/dgrah50/rx-trader-sub002/internal/storage/memory"
	pgstore "github.com/dgrah50/rx-trader-sub002/internal/storage/postgres"
	"github.com/dgrah50/rx-trader-sub002/internal/verification"
)

// ReplayStats summarizes one replay run.
type ReplayStats struct {
	TotalEvents      int                            `json:"total_events"`
	EventCounts      map[string]int                 `json:"event_counts"`
	FirstEventTime   int64                          `json:"first_event_time"`
	LastEventTime    int64                          `json:"last_event_time"`
	LastSeq          uint64                         `json:"last_seq"`
	Deterministic    bool                           `json:"deterministic"`
	SnapshotsChecked int                            `json:"snapshots_checked"`
	SnapshotsMatched int                            `json:"snapshots_matched"`
	Positions        map[string]domain.Position     `json:"positions"`
	Cash             float64                        `json:"cash"`
	FeesPaid         float64                        `json:"fees_paid"`
	NAV              float64                        `json:"nav"`
	Orders           map[projection.OrderStatus]int `json:"orders_by_status"`
}

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (empty log, smoke test only)")
	showEvents := flag.Bool("show-events", false, "Print every event while replaying")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create store
	var store storage.EventStore = memory.NewEventStore()
	if !*useMemory {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		store = pgstore.NewEventStore(pool)
	}

	stats, err := replayAll(ctx, store, *showEvents)
	if err != nil {
		logger.Fatalf("replay failed: %v", err)
	}

	report, err := verification.New(store).Verify(ctx)
	if err != nil {
		logger.Fatalf("verify log: %v", err)
	}
	stats.Deterministic = report.Deterministic
	stats.SnapshotsChecked = report.TotalSnapshots
	stats.SnapshotsMatched = report.MatchedSnapshots
	for _, check := range report.Checks {
		for _, d := range check.Divergences {
			logger.Printf("checkpoint seq %d diverges: %s stored=%v replayed=%v",
				check.Seq, d.Field, d.Expected, d.Actual)
		}
	}
	if !report.Deterministic {
		logger.Fatal("replay is NOT deterministic: two rebuilds over the same log disagree")
	}
	if report.DivergentSnapshots > 0 {
		logger.Fatalf("%d of %d checkpoints diverge from replayed state",
			report.DivergentSnapshots, report.TotalSnapshots)
	}

	// Output summary
	if *outputJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Total Events:      %d\n", stats.TotalEvents)
	for typ, count := range stats.EventCounts {
		fmt.Printf("  %-17s%d\n", typ+":", count)
	}
	fmt.Printf("Last Sequence:     %d\n", stats.LastSeq)
	fmt.Printf("Deterministic:     %v\n", stats.Deterministic)
	fmt.Printf("Checkpoints:       %d/%d verified\n", stats.SnapshotsMatched, stats.SnapshotsChecked)
	if stats.TotalEvents > 0 {
		fmt.Printf("First Event Time:  %s\n", time.UnixMilli(stats.FirstEventTime).Format(time.RFC3339))
		fmt.Printf("Last Event Time:   %s\n", time.UnixMilli(stats.LastEventTime).Format(time.RFC3339))
	}
	fmt.Printf("\n=== Portfolio ===\n")
	fmt.Printf("Cash:              %.4f\n", stats.Cash)
	fmt.Printf("Fees Paid:         %.4f\n", stats.FeesPaid)
	fmt.Printf("NAV:               %.4f\n", stats.NAV)
	for sym, pos := range stats.Positions {
		fmt.Printf("  %-8s pos=%.4f avgPx=%.4f px=%.4f unrealized=%.4f realized=%.4f\n",
			sym, pos.Pos, pos.AvgPx, pos.Px, pos.Unrealized, pos.Realized)
	}
	fmt.Printf("\n=== Orders ===\n")
	for status, count := range stats.Orders {
		fmt.Printf("  %-10s%d\n", string(status)+":", count)
	}
}

// replayAll takes a census of the log and folds it into both projections.
func replayAll(ctx context.Context, store storage.EventStore, showEvents bool) (*ReplayStats, error) {
	stats := &ReplayStats{
		EventCounts: make(map[string]int),
		Positions:   make(map[string]domain.Position),
	}

	stored, err := store.Read(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	for _, se := range stored {
		stats.TotalEvents++
		stats.EventCounts[string(se.Event.Type)]++
		if stats.FirstEventTime == 0 || se.Event.TS < stats.FirstEventTime {
			stats.FirstEventTime = se.Event.TS
		}
		if se.Event.TS > stats.LastEventTime {
			stats.LastEventTime = se.Event.TS
		}
		if showEvents {
			fmt.Printf("[%s] seq=%d type=%s\n",
				time.UnixMilli(se.Event.TS).Format(time.RFC3339Nano),
				se.Seq,
				se.Event.Type,
			)
		}
	}

	portfolio, lastSeq, err := projection.Build(ctx, store, projection.Portfolio())
	if err != nil {
		return nil, err
	}
	orders, _, err := projection.Build(ctx, store, projection.Orders())
	if err != nil {
		return nil, err
	}

	stats.LastSeq = lastSeq
	stats.Positions = portfolio.Positions
	stats.Cash = portfolio.Cash
	stats.FeesPaid = portfolio.FeesPaid
	snap := projection.SnapshotFromState(portfolio, portfolio.LastTS)
	stats.NAV = snap.NAV
	stats.Orders = orders.CountByStatus()
	return stats, nil
}
