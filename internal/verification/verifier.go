// Package verification audits an event log for replay consistency. A log is
// consistent when a cold projection rebuild is deterministic and every
// portfolio.snapshot checkpoint matches the state folded from the events
// that precede it.
package verification

import (
	"math"
	"sort"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between a stored checkpoint value
// and the value derived by replaying the events before it.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // value in the stored snapshot event
	Actual   interface{} // value derived from the fold
}

// SnapshotCheck is the verification outcome for one portfolio.snapshot event.
type SnapshotCheck struct {
	Seq         uint64            // sequence of the snapshot event
	EventID     string            // envelope id of the snapshot event
	T           int64             // checkpoint time (epoch ms)
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
}

// Report contains the results of verifying a whole log.
type Report struct {
	Events             int             // events scanned
	LastSeq            uint64          // high-water mark at read time
	Deterministic      bool            // two cold rebuilds agreed
	TotalSnapshots     int             // checkpoints audited
	MatchedSnapshots   int             // checkpoints that matched exactly
	DivergentSnapshots int             // checkpoints with divergences
	Checks             []SnapshotCheck // individual results
}

// Clean reports whether the log passed every check.
func (r *Report) Clean() bool {
	return r.Deterministic && r.DivergentSnapshots == 0
}

// CompareSnapshots compares a stored checkpoint against the snapshot derived
// from replay and returns divergences. Uses FloatTolerance for float64
// comparisons.
func CompareSnapshots(stored, derived domain.PortfolioSnapshot) []FieldDivergence {
	var divergences []FieldDivergence

	if !floatEquals(stored.NAV, derived.NAV) {
		divergences = append(divergences, FieldDivergence{
			Field:    "NAV",
			Expected: stored.NAV,
			Actual:   derived.NAV,
		})
	}

	if !floatEquals(stored.PnL, derived.PnL) {
		divergences = append(divergences, FieldDivergence{
			Field:    "PnL",
			Expected: stored.PnL,
			Actual:   derived.PnL,
		})
	}

	if !floatEquals(stored.Realized, derived.Realized) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Realized",
			Expected: stored.Realized,
			Actual:   derived.Realized,
		})
	}

	if !floatEquals(stored.Unrealized, derived.Unrealized) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Unrealized",
			Expected: stored.Unrealized,
			Actual:   derived.Unrealized,
		})
	}

	if !floatEquals(stored.Cash, derived.Cash) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Cash",
			Expected: stored.Cash,
			Actual:   derived.Cash,
		})
	}

	if !floatEquals(stored.FeesPaid, derived.FeesPaid) {
		divergences = append(divergences, FieldDivergence{
			Field:    "FeesPaid",
			Expected: stored.FeesPaid,
			Actual:   derived.FeesPaid,
		})
	}

	for _, sym := range unionSymbols(stored.Positions, derived.Positions) {
		sp, storedHas := stored.Positions[sym]
		dp, derivedHas := derived.Positions[sym]

		if !storedHas {
			divergences = append(divergences, FieldDivergence{
				Field:    "Positions[" + sym + "]",
				Expected: nil,
				Actual:   dp,
			})
			continue
		}
		if !derivedHas {
			divergences = append(divergences, FieldDivergence{
				Field:    "Positions[" + sym + "]",
				Expected: sp,
				Actual:   nil,
			})
			continue
		}

		divergences = append(divergences, comparePositions(sym, sp, dp)...)
	}

	return divergences
}

// comparePositions compares one symbol's stored and derived positions.
func comparePositions(sym string, stored, derived domain.Position) []FieldDivergence {
	var divergences []FieldDivergence
	prefix := "Positions[" + sym + "]."

	if !floatEquals(stored.Pos, derived.Pos) {
		divergences = append(divergences, FieldDivergence{
			Field:    prefix + "Pos",
			Expected: stored.Pos,
			Actual:   derived.Pos,
		})
	}

	if !floatEquals(stored.AvgPx, derived.AvgPx) {
		divergences = append(divergences, FieldDivergence{
			Field:    prefix + "AvgPx",
			Expected: stored.AvgPx,
			Actual:   derived.AvgPx,
		})
	}

	if !floatEquals(stored.Px, derived.Px) {
		divergences = append(divergences, FieldDivergence{
			Field:    prefix + "Px",
			Expected: stored.Px,
			Actual:   derived.Px,
		})
	}

	if !floatEquals(stored.Realized, derived.Realized) {
		divergences = append(divergences, FieldDivergence{
			Field:    prefix + "Realized",
			Expected: stored.Realized,
			Actual:   derived.Realized,
		})
	}

	if !floatEquals(stored.Unrealized, derived.Unrealized) {
		divergences = append(divergences, FieldDivergence{
			Field:    prefix + "Unrealized",
			Expected: stored.Unrealized,
			Actual:   derived.Unrealized,
		})
	}

	if !floatEquals(stored.Notional, derived.Notional) {
		divergences = append(divergences, FieldDivergence{
			Field:    prefix + "Notional",
			Expected: stored.Notional,
			Actual:   derived.Notional,
		})
	}

	return divergences
}

// unionSymbols returns the sorted union of both position maps' keys so
// divergence output is stable across runs.
func unionSymbols(a, b map[string]domain.Position) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for sym := range a {
		seen[sym] = true
	}
	for sym := range b {
		seen[sym] = true
	}
	syms := make([]string, 0, len(seen))
	for sym := range seen {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
