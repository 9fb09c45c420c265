package strategy

import (
	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// Strategy turns an ordered tick stream into trade signals.
//
// Implementations keep windowed state per symbol. Ticks for different
// symbols may arrive from different goroutines concurrently; a single
// symbol's ticks must be delivered by one goroutine at a time.
type Strategy interface {
	// OnTick feeds one tick into the strategy. It returns a signal when
	// the tick causes a decision edge transition, nil otherwise. A
	// malformed tick returns a validation error and leaves every
	// symbol's state untouched.
	OnTick(tick domain.MarketTick) (*domain.Signal, error)

	// Name returns the strategy identifier (includes parameters).
	Name() string
}
