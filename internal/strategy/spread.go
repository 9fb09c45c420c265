package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/window"
)

type spreadRegion int

const (
	regionInside spreadRegion = iota
	regionAbove
	regionBelow
)

// Spread trades dislocations between two legs.
//
// Every tick of either leg samples the spread lastA-lastB into a
// rolling window. Once the window is full the current spread is scored
// as a z-score against the window. Crossing above +EntryZ sells legA
// (spread rich), crossing below -EntryZ buys legA (spread cheap).
// Returning inside the band emits nothing. Only legA is traded.
type Spread struct {
	LegA   string  // traded leg
	LegB   string  // reference leg
	Window int     // spread samples retained
	EntryZ float64 // band half-width in standard deviations

	mu sync.Mutex
	st spreadState
}

type spreadState struct {
	lastA, lastB float64
	haveA, haveB bool

	spreads *window.Ring[float64]

	armed  bool // a full-window evaluation has been observed
	region spreadRegion
}

// NewSpread creates a spread strategy over the given pair. Parameter
// validity is checked by the factory.
func NewSpread(legA, legB string, windowN int, entryZ float64) *Spread {
	return &Spread{
		LegA:   legA,
		LegB:   legB,
		Window: windowN,
		EntryZ: entryZ,
		st:     spreadState{spreads: window.NewRing[float64](windowN)},
	}
}

// Name returns the strategy identifier including parameters.
func (s *Spread) Name() string {
	return fmt.Sprintf("spread_%s_%s_w%d_z%.1f", s.LegA, s.LegB, s.Window, s.EntryZ)
}

// OnTick updates the pair's last prices and evaluates the band. Ticks
// for symbols outside the pair are ignored.
func (s *Spread) OnTick(tick domain.MarketTick) (*domain.Signal, error) {
	if err := tick.Validate(); err != nil {
		return nil, err
	}
	if tick.Symbol != s.LegA && tick.Symbol != s.LegB {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tick.Symbol == s.LegA {
		s.st.lastA = tick.Last
		s.st.haveA = true
	} else {
		s.st.lastB = tick.Last
		s.st.haveB = true
	}
	if !s.st.haveA || !s.st.haveB {
		return nil, nil
	}

	spread := s.st.lastA - s.st.lastB
	s.st.spreads.Push(spread)
	if !s.st.spreads.Full() {
		return nil, nil
	}

	items := s.st.spreads.Items()
	m := mean(items)
	sd := stddev(items, m)
	z := 0.0
	if sd > 0 {
		z = (spread - m) / sd
	}

	region := regionInside
	switch {
	case z > s.EntryZ:
		region = regionAbove
	case z < -s.EntryZ:
		region = regionBelow
	}

	if !s.st.armed {
		s.st.armed = true
		s.st.region = region
		return nil, nil
	}
	if region == s.st.region {
		return nil, nil
	}
	s.st.region = region
	if region == regionInside {
		return nil, nil
	}

	side := domain.SideSell
	word := "above"
	if region == regionBelow {
		side = domain.SideBuy
		word = "below"
	}
	reason := fmt.Sprintf("spread z %.2f crossed %s band %.2f", z, word, s.EntryZ)
	return newSignal(tick.T, s.LegA, side, math.Abs(z), s.Name(), reason), nil
}

// Ensure Spread implements Strategy
var _ Strategy = (*Spread)(nil)
