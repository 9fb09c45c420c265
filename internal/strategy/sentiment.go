package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/window"
)

type sentimentRegion int

const (
	sentimentNeutral sentimentRegion = iota
	sentimentBullish
	sentimentBearish
)

// Sentiment scores each tick against thresholds.
//
// The score is the relative deviation of the last price from its
// rolling mean: (last - mean) / mean. A score crossing above BuyAbove
// fires a buy, crossing below SellBelow fires a sell. A score that
// stays past a threshold fires only at the crossing tick.
type Sentiment struct {
	Window    int     // prices retained for the rolling mean
	BuyAbove  float64 // buy when the score crosses above this
	SellBelow float64 // sell when the score crosses below this

	mu    sync.Mutex
	state map[string]*sentimentState
}

type sentimentState struct {
	prices *window.Ring[float64]

	armed  bool // a full-window evaluation has been observed
	region sentimentRegion
}

// NewSentiment creates a sentiment strategy. Parameter validity is
// checked by the factory.
func NewSentiment(windowN int, buyAbove, sellBelow float64) *Sentiment {
	return &Sentiment{
		Window:    windowN,
		BuyAbove:  buyAbove,
		SellBelow: sellBelow,
		state:     make(map[string]*sentimentState),
	}
}

// Name returns the strategy identifier including parameters.
func (s *Sentiment) Name() string {
	return fmt.Sprintf("sentiment_w%d_buy%.3f_sell%.3f", s.Window, s.BuyAbove, s.SellBelow)
}

// OnTick scores the tick once the symbol's window is full. The first
// full evaluation arms the region so a score already past a threshold
// at startup cannot fire.
func (s *Sentiment) OnTick(tick domain.MarketTick) (*domain.Signal, error) {
	if err := tick.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state[tick.Symbol]
	if st == nil {
		st = &sentimentState{prices: window.NewRing[float64](s.Window)}
		s.state[tick.Symbol] = st
	}

	st.prices.Push(tick.Last)
	if !st.prices.Full() {
		return nil, nil
	}

	m := mean(st.prices.Items())
	if m == 0 {
		return nil, nil
	}
	score := (tick.Last - m) / m

	region := sentimentNeutral
	switch {
	case score > s.BuyAbove:
		region = sentimentBullish
	case score < s.SellBelow:
		region = sentimentBearish
	}

	if !st.armed {
		st.armed = true
		st.region = region
		return nil, nil
	}
	if region == st.region {
		return nil, nil
	}
	st.region = region
	if region == sentimentNeutral {
		return nil, nil
	}

	side := domain.SideBuy
	threshold := s.BuyAbove
	word := "above"
	if region == sentimentBearish {
		side = domain.SideSell
		threshold = s.SellBelow
		word = "below"
	}
	reason := fmt.Sprintf("score %.4f crossed %s threshold %.4f", score, word, threshold)
	return newSignal(tick.T, tick.Symbol, side, math.Abs(score), s.Name(), reason), nil
}

// Ensure Sentiment implements Strategy
var _ Strategy = (*Sentiment)(nil)
