package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/window"
)

// Momentum signals on moving-average crossovers.
//
// Each symbol keeps a fast and a slow window over last prices. When the
// fast average crosses from below-or-equal to above the slow average, a
// buy fires; the opposite crossing fires a sell. A relation that merely
// persists across ticks never fires again.
type Momentum struct {
	FastWindow int // fast moving-average length, in ticks
	SlowWindow int // slow moving-average length, in ticks

	mu    sync.Mutex
	state map[string]*momentumState
}

type momentumState struct {
	fast *window.Ring[float64]
	slow *window.Ring[float64]

	armed     bool // a full comparison has been observed
	fastAbove bool // relation at the previous comparison
}

// NewMomentum creates a momentum strategy. Window validity is checked
// by the factory.
func NewMomentum(fastWindow, slowWindow int) *Momentum {
	return &Momentum{
		FastWindow: fastWindow,
		SlowWindow: slowWindow,
		state:      make(map[string]*momentumState),
	}
}

// Name returns the strategy identifier including parameters.
func (s *Momentum) Name() string {
	return fmt.Sprintf("momentum_fast%d_slow%d", s.FastWindow, s.SlowWindow)
}

// OnTick pushes the tick into both windows and evaluates the crossover
// once the slow window is full. The first full comparison only arms the
// detector so a relation that already holds at startup cannot fire.
func (s *Momentum) OnTick(tick domain.MarketTick) (*domain.Signal, error) {
	if err := tick.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state[tick.Symbol]
	if st == nil {
		st = &momentumState{
			fast: window.NewRing[float64](s.FastWindow),
			slow: window.NewRing[float64](s.SlowWindow),
		}
		s.state[tick.Symbol] = st
	}

	st.fast.Push(tick.Last)
	st.slow.Push(tick.Last)
	if !st.slow.Full() {
		return nil, nil
	}

	fastMA := mean(st.fast.Items())
	slowMA := mean(st.slow.Items())
	above := fastMA > slowMA

	if !st.armed {
		st.armed = true
		st.fastAbove = above
		return nil, nil
	}
	if above == st.fastAbove {
		return nil, nil
	}
	st.fastAbove = above

	side := domain.SideSell
	if above {
		side = domain.SideBuy
	}
	strength := 0.0
	if slowMA != 0 {
		strength = math.Abs(fastMA-slowMA) / math.Abs(slowMA)
	}
	reason := fmt.Sprintf("fast MA %.4f crossed %s slow MA %.4f", fastMA, crossWord(above), slowMA)
	return newSignal(tick.T, tick.Symbol, side, strength, s.Name(), reason), nil
}

// Ensure Momentum implements Strategy
var _ Strategy = (*Momentum)(nil)
