package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// Scripted replays a fixed tick sequence in order.
//
// Deterministic by construction, it drives simulations and tests that
// need exact price paths.
type Scripted struct {
	ticks    []domain.MarketTick
	interval time.Duration

	mu        sync.Mutex
	connected bool

	done      chan struct{}
	closeOnce sync.Once
}

// ScriptedOption configures a Scripted feed.
type ScriptedOption func(*Scripted)

// WithTickInterval spaces consecutive ticks by d of wall time.
func WithTickInterval(d time.Duration) ScriptedOption {
	return func(f *Scripted) { f.interval = d }
}

// NewScripted creates a feed that replays ticks in the given order.
func NewScripted(ticks []domain.MarketTick, opts ...ScriptedOption) *Scripted {
	f := &Scripted{
		ticks: ticks,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect starts replaying the script. The channel closes after the
// last tick.
func (f *Scripted) Connect(ctx context.Context) (<-chan domain.MarketTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return nil, ErrAlreadyConnected
	}
	select {
	case <-f.done:
		return nil, ErrClosed
	default:
	}
	f.connected = true

	out := make(chan domain.MarketTick)
	go func() {
		defer close(out)
		for _, tick := range f.ticks {
			if f.interval > 0 {
				select {
				case <-time.After(f.interval):
				case <-f.done:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- tick:
			case <-f.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops the replay.
func (f *Scripted) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

// RandomWalk generates a seeded random walk per symbol.
//
// Each step moves one symbol's price by up to volBps basis points
// either way. The same seed yields the same tick sequence.
type RandomWalk struct {
	symbols  []string
	start    float64
	volBps   float64
	count    int // ticks per symbol, 0 means until closed
	interval time.Duration
	seed     int64
	clock    domain.Clock

	mu        sync.Mutex
	connected bool

	done      chan struct{}
	closeOnce sync.Once
}

// RandomWalkOption configures a RandomWalk feed.
type RandomWalkOption func(*RandomWalk)

// WithWalkInterval spaces consecutive ticks by d of wall time.
func WithWalkInterval(d time.Duration) RandomWalkOption {
	return func(f *RandomWalk) { f.interval = d }
}

// WithWalkCount bounds the walk to n ticks per symbol.
func WithWalkCount(n int) RandomWalkOption {
	return func(f *RandomWalk) { f.count = n }
}

// WithWalkClock sets the clock used to stamp ticks.
func WithWalkClock(clock domain.Clock) RandomWalkOption {
	return func(f *RandomWalk) { f.clock = clock }
}

// NewRandomWalk creates a seeded random-walk feed over symbols starting
// at the given price with per-step volatility volBps.
func NewRandomWalk(symbols []string, start, volBps float64, seed int64, opts ...RandomWalkOption) *RandomWalk {
	f := &RandomWalk{
		symbols: symbols,
		start:   start,
		volBps:  volBps,
		seed:    seed,
		clock:   domain.SystemClock{},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect starts the walk. Symbols advance round-robin, one tick per
// step.
func (f *RandomWalk) Connect(ctx context.Context) (<-chan domain.MarketTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return nil, ErrAlreadyConnected
	}
	select {
	case <-f.done:
		return nil, ErrClosed
	default:
	}
	f.connected = true

	out := make(chan domain.MarketTick)
	go func() {
		defer close(out)
		rng := rand.New(rand.NewSource(f.seed))
		prices := make(map[string]float64, len(f.symbols))
		for _, s := range f.symbols {
			prices[s] = f.start
		}

		for step := 0; f.count == 0 || step < f.count; step++ {
			for _, symbol := range f.symbols {
				px := prices[symbol] * (1 + (rng.Float64()*2-1)*f.volBps/10000)
				if px <= 0 {
					px = prices[symbol]
				}
				prices[symbol] = px

				half := px * 0.0001
				tick := domain.MarketTick{
					T:      f.clock.Now().UnixMilli(),
					Symbol: symbol,
					Bid:    px - half,
					Ask:    px + half,
					Last:   px,
				}

				if f.interval > 0 {
					select {
					case <-time.After(f.interval):
					case <-f.done:
						return
					case <-ctx.Done():
						return
					}
				}
				select {
				case out <- tick:
				case <-f.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close stops the walk.
func (f *RandomWalk) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

// Ensure both simulators implement Feed
var _ Feed = (*Scripted)(nil)
var _ Feed = (*RandomWalk)(nil)
