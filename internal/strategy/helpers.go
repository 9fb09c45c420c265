package strategy

import (
	"math"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// mean returns the arithmetic mean of xs. Empty input returns 0.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the population standard deviation of xs around m.
func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// newSignal builds a signal at the triggering tick's timestamp.
func newSignal(t int64, symbol string, side domain.Side, strength float64, name, reason string) *domain.Signal {
	return &domain.Signal{
		T:        t,
		Symbol:   symbol,
		Side:     side,
		Strength: strength,
		Strategy: name,
		Reason:   reason,
	}
}

// crossWord labels the direction of a crossing for signal reasons.
func crossWord(above bool) string {
	if above {
		return "above"
	}
	return "below"
}
