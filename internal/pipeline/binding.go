package pipeline

import (
	"errors"
	"fmt"

	"github.com/dgrah50/rx-trader-sub002/internal/execution"
	"github.com/dgrah50/rx-trader-sub002/internal/feed"
	"github.com/dgrah50/rx-trader-sub002/internal/strategy"
)

// Controller configuration errors
var (
	ErrMissingStore    = errors.New("event store is required")
	ErrNoBindings      = errors.New("at least one binding is required")
	ErrDuplicateSymbol = errors.New("symbol bound more than once")
	ErrAlreadyStarted  = errors.New("controller already started")
)

// Binding routes one feed through one strategy into one venue for a set
// of symbols. A symbol belongs to exactly one binding.
type Binding struct {
	Name     string            // label used in logs and status
	Feed     feed.Feed         // tick source
	Strategy strategy.Strategy // signal generator
	Adapter  execution.Adapter // order venue
	Symbols  []string          // symbols routed through this binding
	Qty      float64           // order quantity per signal
}

func (b Binding) validate() error {
	if b.Name == "" {
		return fmt.Errorf("binding has no name")
	}
	if b.Feed == nil {
		return fmt.Errorf("binding %s: feed is required", b.Name)
	}
	if b.Strategy == nil {
		return fmt.Errorf("binding %s: strategy is required", b.Name)
	}
	if b.Adapter == nil {
		return fmt.Errorf("binding %s: adapter is required", b.Name)
	}
	if len(b.Symbols) == 0 {
		return fmt.Errorf("binding %s: at least one symbol is required", b.Name)
	}
	if b.Qty <= 0 {
		return fmt.Errorf("binding %s: qty must be positive", b.Name)
	}
	return nil
}
