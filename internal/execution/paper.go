package execution

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// Venue failure codes surfaced in reject reasons.
const (
	codeNoMarketPrice = "NO_MARKET_PRICE"
	codeRateLimited   = "RATE_LIMITED"
	codeNotMarketable = "NOT_MARKETABLE"
	codeFriction      = "SIM_FRICTION"
)

const (
	defaultQueueDepth  = 64
	defaultEventBuffer = 128
)

// Paper is a simulated venue. It fills every well-formed order at the
// last observed price for its symbol, as told through SetMark. Orders
// with no observed price, orders over the venue rate limit, and limit
// orders not marketable against the mark are rejected. All outcomes
// are terminal events on the Events stream.
type Paper struct {
	venue  string
	clock  domain.Clock
	logger zerolog.Logger

	limiter    *rate.Limiter // nil means unlimited
	feeBps     float64
	rejectRate float64
	slipBps    float64

	rngMu sync.Mutex
	rng   *rand.Rand // nil unless friction is enabled

	marksMu sync.RWMutex
	marks   map[string]float64

	queue  chan domain.Order
	events chan domain.Event
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	submitting sync.WaitGroup
}

// PaperOption configures a Paper venue.
type PaperOption func(*Paper)

// WithClock sets the clock used to stamp venue events.
func WithClock(clock domain.Clock) PaperOption {
	return func(p *Paper) { p.clock = clock }
}

// WithLogger sets the venue logger.
func WithLogger(logger zerolog.Logger) PaperOption {
	return func(p *Paper) { p.logger = logger }
}

// WithQueueDepth bounds the submit queue. Submits block when full.
func WithQueueDepth(n int) PaperOption {
	return func(p *Paper) {
		if n > 0 {
			p.queue = make(chan domain.Order, n)
		}
	}
}

// WithEventBuffer bounds the outcome stream buffer.
func WithEventBuffer(n int) PaperOption {
	return func(p *Paper) {
		if n > 0 {
			p.events = make(chan domain.Event, n)
		}
	}
}

// WithRateLimit applies a venue-side rate limit. Orders over the limit
// are rejected, not queued.
func WithRateLimit(limiter *rate.Limiter) PaperOption {
	return func(p *Paper) { p.limiter = limiter }
}

// WithFee charges fills a fee of feeBps basis points of notional.
func WithFee(feeBps float64) PaperOption {
	return func(p *Paper) { p.feeBps = feeBps }
}

// WithFriction adds seeded random venue behaviour: each order is
// rejected with probability rejectRate, and fill prices move by up to
// slipBps basis points either way. The same seed replays identically.
func WithFriction(seed int64, rejectRate, slipBps float64) PaperOption {
	return func(p *Paper) {
		p.rng = rand.New(rand.NewSource(seed))
		p.rejectRate = rejectRate
		p.slipBps = slipBps
	}
}

// NewPaper creates a paper venue and starts its execution loop.
func NewPaper(venue string, opts ...PaperOption) *Paper {
	p := &Paper{
		venue:  venue,
		clock:  domain.SystemClock{},
		logger: zerolog.Nop(),
		marks:  make(map[string]float64),
		queue:  make(chan domain.Order, defaultQueueDepth),
		events: make(chan domain.Event, defaultEventBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// SetMark records the last observed price for a symbol. Subsequent
// fills for the symbol execute at this price.
func (p *Paper) SetMark(symbol string, px float64) {
	if px <= 0 {
		return
	}
	p.marksMu.Lock()
	p.marks[symbol] = px
	p.marksMu.Unlock()
}

func (p *Paper) lastMark(symbol string) (float64, bool) {
	p.marksMu.RLock()
	defer p.marksMu.RUnlock()
	px, ok := p.marks[symbol]
	return px, ok
}

// Submit validates the order and enqueues it for execution.
func (p *Paper) Submit(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.submitting.Add(1)
	p.mu.Unlock()
	defer p.submitting.Done()

	select {
	case p.queue <- order:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the venue outcome stream.
func (p *Paper) Events() <-chan domain.Event {
	return p.events
}

// Close stops accepting orders, executes everything already queued,
// then closes the event stream. Safe to call more than once.
func (p *Paper) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// In-flight Submits hold the wait group between the closed check
	// and their queue send, so the queue only closes once no sender
	// remains.
	p.submitting.Wait()
	close(p.queue)
	<-p.done
	return nil
}

func (p *Paper) run() {
	defer close(p.done)
	for order := range p.queue {
		p.execute(order)
	}
	close(p.events)
}

// execute produces an ack and exactly one terminal event for the order.
func (p *Paper) execute(order domain.Order) {
	now := p.clock.Now().UnixMilli()

	ack, err := domain.NewOrderAckEvent(now, domain.OrderAck{
		OrderID: order.OrderID,
		T:       now,
		Symbol:  order.Symbol,
		Venue:   p.venue,
	})
	if err == nil {
		p.events <- ack
	}

	if p.limiter != nil && !p.limiter.Allow() {
		p.reject(order, now, &domain.VenueError{Venue: p.venue, Code: codeRateLimited, Reason: "rate limited"})
		return
	}
	if p.rng != nil && p.rejectRate > 0 && p.roll() < p.rejectRate {
		p.reject(order, now, &domain.VenueError{Venue: p.venue, Code: codeFriction, Reason: "simulated venue failure"})
		return
	}

	px, ok := p.lastMark(order.Symbol)
	if !ok {
		p.reject(order, now, &domain.VenueError{Venue: p.venue, Code: codeNoMarketPrice, Reason: "no market price for " + order.Symbol})
		return
	}
	if p.rng != nil && p.slipBps > 0 {
		px *= 1 + (p.roll()*2-1)*p.slipBps/10000
	}

	// No resting book: limit orders execute immediate-or-cancel against
	// the mark.
	if order.Type == domain.OrderTypeLimit {
		marketable := (order.Side == domain.SideBuy && px <= order.Limit) ||
			(order.Side == domain.SideSell && px >= order.Limit)
		if !marketable {
			p.reject(order, now, &domain.VenueError{Venue: p.venue, Code: codeNotMarketable, Reason: "limit not marketable"})
			return
		}
	}

	fee := px * order.Qty * p.feeBps / 10000
	fill, err := domain.NewOrderFillEvent(now, domain.OrderFill{
		OrderID: order.OrderID,
		T:       now,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Qty:     order.Qty,
		Px:      px,
		Fee:     fee,
		Venue:   p.venue,
	})
	if err != nil {
		// The order must still reach a terminal outcome.
		p.reject(order, now, &domain.VenueError{Venue: p.venue, Code: codeFriction, Reason: err.Error()})
		return
	}
	p.events <- fill
}

func (p *Paper) reject(order domain.Order, now int64, cause *domain.VenueError) {
	p.logger.Debug().
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("code", cause.Code).
		Msg("paper venue rejected order")

	ev, err := domain.NewOrderRejectEvent(now, domain.OrderReject{
		OrderID: order.OrderID,
		T:       now,
		Symbol:  order.Symbol,
		Reason:  cause.Error(),
		Venue:   p.venue,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("building reject event")
		return
	}
	p.events <- ev
}

func (p *Paper) roll() float64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64()
}

// Ensure Paper implements Adapter
var _ Adapter = (*Paper)(nil)
