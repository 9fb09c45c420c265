// Package pipeline wires feeds, strategies, and execution venues into
// the event store and keeps live projections over the resulting log.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/observability"
	"github.com/dgrah50/rx-trader-sub002/internal/projection"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

const defaultQueueDepth = 256

// marker is implemented by venues that price fills from observed marks.
type marker interface {
	SetMark(symbol string, px float64)
}

// Options configures a Controller.
type Options struct {
	Store    storage.EventStore
	Bindings []Binding

	Logger  *zerolog.Logger        // nil discards logs
	Metrics *observability.Metrics // nil records nothing
	Clock   domain.Clock           // nil means system clock

	// Timeseries receives one portfolio point per snapshot. Optional.
	Timeseries storage.PortfolioTimeseriesStore

	// QueueDepth bounds each symbol's tick queue. Producers block when
	// a queue is full.
	QueueDepth int

	// Retry bounds append retries. Zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	// SnapshotEvery appends periodic portfolio checkpoints. Zero
	// disables the loop; Stop still takes a final checkpoint.
	SnapshotEvery time.Duration
}

// Controller owns the tick-to-event flow: it routes feed ticks to
// per-symbol workers, appends every derived event to the store, and
// holds an order's symbol until the terminal outcome is durable.
// Symbols run concurrently; a single symbol is strictly sequential.
type Controller struct {
	store      storage.EventStore
	bindings   []Binding
	logger     zerolog.Logger
	metrics    *observability.Metrics
	clock      domain.Clock
	timeseries storage.PortfolioTimeseriesStore
	queueDepth int
	retry      RetryPolicy
	snapEvery  time.Duration

	// appendMu serializes all appends so a snapshot can capture the
	// exact log tip it was folded from.
	appendMu sync.Mutex

	foldMu    sync.Mutex
	portfolio *projection.Fold[projection.PortfolioState]
	orders    *projection.Fold[projection.OrdersState]

	waiters *waiterRegistry

	mu      sync.Mutex
	state   runState
	workers map[string]*worker

	pumpWg   sync.WaitGroup
	workerWg sync.WaitGroup
	execWg   sync.WaitGroup
	snapWg   sync.WaitGroup

	runCtx        context.Context
	cancelRun     context.CancelFunc
	stopSnapshots chan struct{}
}

// New validates the options and creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, ErrMissingStore
	}
	if len(opts.Bindings) == 0 {
		return nil, ErrNoBindings
	}
	bound := make(map[string]string)
	for _, b := range opts.Bindings {
		if err := b.validate(); err != nil {
			return nil, err
		}
		for _, sym := range b.Symbols {
			if prev, ok := bound[sym]; ok {
				return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateSymbol, sym, prev, b.Name)
			}
			bound[sym] = b.Name
		}
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	queueDepth := opts.QueueDepth
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}

	return &Controller{
		store:      opts.Store,
		bindings:   opts.Bindings,
		logger:     logger,
		metrics:    opts.Metrics,
		clock:      clock,
		timeseries: opts.Timeseries,
		queueDepth: queueDepth,
		retry:      opts.Retry.orDefault(),
		snapEvery:  opts.SnapshotEvery,
		portfolio:  projection.NewFold(projection.Portfolio(), projection.ClonePortfolioState),
		orders:     projection.NewFold(projection.Orders(), projection.CloneOrdersState),
		waiters:    newWaiterRegistry(),
		workers:    make(map[string]*worker),
	}, nil
}

// Start warms the projections from the existing log, connects every
// feed, and begins processing. The context bounds connection setup
// only; Stop ends processing.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = stateRunning
	c.mu.Unlock()

	if err := c.refreshFolds(ctx); err != nil {
		c.setState(stateStopped)
		return fmt.Errorf("warm projections: %w", err)
	}

	// Connect every feed before any goroutine starts so a failed
	// connect leaves nothing running.
	tickStreams := make([]<-chan domain.MarketTick, len(c.bindings))
	for i, b := range c.bindings {
		ticks, err := b.Feed.Connect(ctx)
		if err != nil {
			for j := 0; j < i; j++ {
				c.bindings[j].Feed.Close()
			}
			c.setState(stateStopped)
			return fmt.Errorf("connect feed for %s: %w", b.Name, err)
		}
		tickStreams[i] = ticks
	}

	c.runCtx, c.cancelRun = context.WithCancel(context.Background())

	// Build every worker before spawning anything so no goroutine
	// observes a partially-populated worker map.
	bindingQueues := make([]map[string]chan domain.MarketTick, len(c.bindings))
	c.mu.Lock()
	for i, b := range c.bindings {
		queues := make(map[string]chan domain.MarketTick, len(b.Symbols))
		for _, sym := range b.Symbols {
			q := make(chan domain.MarketTick, c.queueDepth)
			queues[sym] = q
			c.workers[sym] = &worker{c: c, binding: b, symbol: sym, queue: q}
		}
		bindingQueues[i] = queues
	}
	c.mu.Unlock()

	for i := range c.bindings {
		b := c.bindings[i]

		for _, sym := range b.Symbols {
			w := c.workers[sym]
			c.workerWg.Add(1)
			go w.run()
		}

		c.pumpWg.Add(1)
		go c.pumpFeed(b, tickStreams[i], bindingQueues[i])

		c.execWg.Add(1)
		go c.execEventLoop(b)
	}

	if c.snapEvery > 0 {
		c.stopSnapshots = make(chan struct{})
		c.snapWg.Add(1)
		go c.snapshotLoop()
	}

	c.updateSymbolGauges()
	c.metrics.SetRunning(true)
	c.logger.Info().Int("bindings", len(c.bindings)).Int("symbols", len(c.workers)).Msg("pipeline started")
	return nil
}

// Stop unsubscribes from all feeds, drains in-flight work to terminal
// events, appends a final portfolio checkpoint, and halts. Safe to call
// once processing has started; repeated calls are no-ops.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Info().Msg("pipeline stopping")

	// Stop new work first.
	for _, b := range c.bindings {
		if err := b.Feed.Close(); err != nil {
			c.logger.Warn().Err(err).Str("binding", b.Name).Msg("feed close failed")
		}
	}
	c.pumpWg.Wait()

	// Workers drain queued ticks and wait out in-flight orders.
	c.workerWg.Wait()

	// Venues execute whatever is still queued, then close their streams.
	for _, b := range c.bindings {
		if err := b.Adapter.Close(); err != nil {
			c.logger.Warn().Err(err).Str("binding", b.Name).Msg("adapter close failed")
		}
	}
	c.execWg.Wait()

	if c.stopSnapshots != nil {
		close(c.stopSnapshots)
		c.snapWg.Wait()
	}

	// Final checkpoint over the fully drained log.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Snapshot(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("final snapshot failed")
	}

	c.cancelRun()
	c.setState(stateStopped)
	c.metrics.SetRunning(false)
	c.logger.Info().Msg("pipeline stopped")
	return nil
}

func (c *Controller) setState(s runState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// pumpFeed routes one feed's ticks into per-symbol queues. A full
// queue blocks the pump, which in turn blocks the feed.
func (c *Controller) pumpFeed(b Binding, ticks <-chan domain.MarketTick, queues map[string]chan domain.MarketTick) {
	defer c.pumpWg.Done()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	for tick := range ticks {
		q, ok := queues[tick.Symbol]
		if !ok {
			c.logger.Debug().Str("symbol", tick.Symbol).Str("binding", b.Name).Msg("tick for unbound symbol")
			continue
		}
		c.metrics.RecordTick(tick.Symbol)
		select {
		case q <- tick:
			c.metrics.SetTickQueueDepth(tick.Symbol, len(q))
		case <-c.runCtx.Done():
			return
		}
	}
}

// execEventLoop appends venue outcomes and releases order waiters. It
// runs until the adapter closes its event stream.
func (c *Controller) execEventLoop(b Binding) {
	defer c.execWg.Done()

	for ev := range b.Adapter.Events() {
		orderID, symbol, outcome := execEventInfo(ev)

		if err := c.append(c.runCtx, ev); err != nil {
			c.logger.Error().Err(err).
				Str("type", string(ev.Type)).
				Str("order_id", orderID).
				Msg("appending execution event failed")
			c.suspendSymbol(symbol, fmt.Sprintf("append %s failed: %v", ev.Type, err))
		}

		if outcome != "" {
			if submitted, ok := c.waiters.notify(orderID); ok {
				c.metrics.RecordOrderOutcome(outcome, c.clock.Now().Sub(submitted).Seconds())
			} else {
				c.metrics.RecordOrderOutcome(outcome, 0)
			}
		}
	}
}

// execEventInfo extracts routing fields from a venue event. The
// outcome is empty for non-terminal events.
func execEventInfo(ev domain.Event) (orderID, symbol, outcome string) {
	switch ev.Type {
	case domain.EventOrderAck:
		if ack, err := domain.DecodeOrderAck(ev); err == nil {
			return ack.OrderID, ack.Symbol, ""
		}
	case domain.EventOrderFill:
		if fill, err := domain.DecodeOrderFill(ev); err == nil {
			return fill.OrderID, fill.Symbol, "fill"
		}
	case domain.EventOrderReject:
		if rej, err := domain.DecodeOrderReject(ev); err == nil {
			return rej.OrderID, rej.Symbol, "reject"
		}
	}
	return "", "", ""
}

// append writes events to the store, retrying retryable storage errors
// with exponential backoff. All controller appends pass through here so
// Snapshot can serialize against them.
func (c *Controller) append(ctx context.Context, events ...domain.Event) error {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()
	return c.appendLocked(ctx, events...)
}

func (c *Controller) appendLocked(ctx context.Context, events ...domain.Event) error {
	start := time.Now()
	delay := c.retry.BaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		err = c.store.Append(ctx, events...)
		if err == nil {
			c.metrics.RecordAppend(len(events), time.Since(start).Seconds(), time.Now().Unix())
			return nil
		}
		if !storage.IsRetryable(err) || attempt >= c.retry.MaxAttempts {
			break
		}
		c.metrics.RecordAppendRetry()
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("append failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.metrics.RecordAppendFailure()
			return ctx.Err()
		}
		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	c.metrics.RecordAppendFailure()
	return err
}

// refreshFolds advances the live projections to the current log tip.
// Reading from the lower of the two fold sequences lets a fold that
// fell behind on an earlier error catch back up; the ahead fold skips
// the replayed events.
func (c *Controller) refreshFolds(ctx context.Context) error {
	c.foldMu.Lock()
	defer c.foldMu.Unlock()

	_, pSeq := c.portfolio.State()
	_, oSeq := c.orders.State()
	since := pSeq
	if oSeq < since {
		since = oSeq
	}

	stored, err := c.store.Read(ctx, since)
	if err != nil {
		return err
	}
	for _, se := range stored {
		if err := c.portfolio.ApplySeq(se); err != nil {
			return err
		}
		if err := c.orders.ApplySeq(se); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot appends a portfolio checkpoint. Appends are held while the
// fold catches up to the tip, so the checkpoint misses no committed
// event. The same state feeds the timeseries sink when configured.
func (c *Controller) Snapshot(ctx context.Context) error {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	if err := c.refreshFolds(ctx); err != nil {
		return fmt.Errorf("snapshot catch-up: %w", err)
	}
	state, _ := c.portfolio.State()
	now := c.clock.Now().UnixMilli()

	ev, err := domain.NewSnapshotEvent(now, projection.SnapshotFromState(state, now))
	if err != nil {
		return err
	}
	if err := c.appendLocked(ctx, ev); err != nil {
		return err
	}
	c.metrics.RecordSnapshot()

	if c.timeseries != nil {
		point := projection.PointFromState(state, now)
		if err := c.timeseries.InsertBulk(ctx, []*domain.PortfolioPoint{&point}); err != nil {
			c.logger.Warn().Err(err).Msg("portfolio timeseries insert failed")
		} else {
			c.metrics.RecordTimeseriesPoint()
		}
	}
	return nil
}

func (c *Controller) snapshotLoop() {
	defer c.snapWg.Done()

	ticker := time.NewTicker(c.snapEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSnapshots:
			return
		case <-ticker.C:
			if err := c.Snapshot(c.runCtx); err != nil {
				c.logger.Error().Err(err).Msg("periodic snapshot failed")
			}
		}
	}
}

// Portfolio returns the live portfolio aggregated over the whole log.
func (c *Controller) Portfolio(ctx context.Context) (domain.PortfolioSnapshot, error) {
	if err := c.refreshFolds(ctx); err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	state, _ := c.portfolio.State()
	return projection.SnapshotFromState(state, c.clock.Now().UnixMilli()), nil
}

// Positions returns the live per-symbol positions.
func (c *Controller) Positions(ctx context.Context) (map[string]domain.Position, error) {
	if err := c.refreshFolds(ctx); err != nil {
		return nil, err
	}
	state, _ := c.portfolio.State()
	return state.Positions, nil
}

// Orders returns the live order views keyed by order id.
func (c *Controller) Orders(ctx context.Context) (map[string]projection.OrderView, error) {
	if err := c.refreshFolds(ctx); err != nil {
		return nil, err
	}
	state, _ := c.orders.State()
	return state.Orders, nil
}

// Rebuild folds the portfolio projection from sequence zero, ignoring
// the live fold. Replaying the same log always yields the same state.
func (c *Controller) Rebuild(ctx context.Context) (projection.PortfolioState, uint64, error) {
	return projection.Build(ctx, c.store, projection.Portfolio())
}

// SymbolStatus reports one symbol pipeline's health.
type SymbolStatus struct {
	Binding   string `json:"binding"`
	Suspended bool   `json:"suspended"`
	LastError string `json:"lastError,omitempty"`
	Ticks     uint64 `json:"ticks"`
	Orders    uint64 `json:"orders"`
}

// Status reports controller health.
type Status struct {
	Running bool                    `json:"running"`
	Symbols map[string]SymbolStatus `json:"symbols"`
}

// Status returns a point-in-time view of every symbol pipeline.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	symbols := make(map[string]SymbolStatus, len(c.workers))
	for sym, w := range c.workers {
		symbols[sym] = w.status()
	}
	return Status{Running: c.state == stateRunning, Symbols: symbols}
}

func (c *Controller) suspendSymbol(symbol, reason string) {
	if symbol == "" {
		return
	}
	if w, ok := c.workers[symbol]; ok {
		w.suspend(reason)
	}
	c.updateSymbolGauges()
}

func (c *Controller) updateSymbolGauges() {
	active, suspended := 0, 0
	for _, w := range c.workers {
		if w.isSuspended() {
			suspended++
		} else {
			active++
		}
	}
	c.metrics.SetSymbolCounts(active, suspended)
}
