package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// WSConfig configures WebSocket feed behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the connection handshake.
	HandshakeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// wsSubscribe is the subscription request sent after each connect.
type wsSubscribe struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// WS streams ticks from a WebSocket market data endpoint.
//
// It reconnects with exponential backoff on read failures and
// resubscribes to its symbols after every reconnect. Malformed frames
// are logged and skipped at the boundary; valid ticks are dispatched
// with a blocking send so no tick is dropped under backpressure.
type WS struct {
	endpoint string
	symbols  []string
	config   WSConfig
	logger   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	closed       atomic.Bool
	reconnecting atomic.Bool

	mu        sync.Mutex
	connected bool

	out  chan domain.MarketTick
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWS creates a WebSocket feed for the given symbols. A nil config
// uses DefaultWSConfig.
func NewWS(endpoint string, symbols []string, config *WSConfig, logger zerolog.Logger) *WS {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WS{
		endpoint: endpoint,
		symbols:  symbols,
		config:   cfg,
		logger:   logger,
		out:      make(chan domain.MarketTick, 1024),
		done:     make(chan struct{}),
	}
}

// Connect dials the endpoint, subscribes, and starts the read and ping
// loops.
func (f *WS) Connect(ctx context.Context) (<-chan domain.MarketTick, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	f.mu.Lock()
	if f.connected {
		f.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	f.connected = true
	f.mu.Unlock()

	if err := f.connect(ctx); err != nil {
		return nil, err
	}
	if err := f.subscribe(); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f.out, nil
}

// connect establishes the WebSocket connection.
func (f *WS) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: f.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// subscribe sends the symbol subscription on the current connection.
func (f *WS) subscribe() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := f.conn.WriteJSON(wsSubscribe{Op: "subscribe", Symbols: f.symbols}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the connection and the tick channel.
func (f *WS) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	close(f.out)
	return nil
}

// readLoop reads frames and dispatches ticks until closed.
func (f *WS) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			// Connection error - reconnect with exponential backoff
			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect redials and resubscribes after a connection failure.
func (f *WS) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		f.logger.Warn().Err(err).Str("endpoint", f.endpoint).Msg("feed reconnect failed")
		return
	}
	if err := f.subscribe(); err != nil {
		f.logger.Warn().Err(err).Str("endpoint", f.endpoint).Msg("feed resubscribe failed")
		return
	}
	f.logger.Info().Str("endpoint", f.endpoint).Msg("feed reconnected")
}

// handleMessage validates and dispatches one frame.
func (f *WS) handleMessage(message []byte) {
	var tick domain.MarketTick
	if err := json.Unmarshal(message, &tick); err != nil {
		f.logger.Warn().Err(err).Msg("feed frame not a tick, skipping")
		return
	}
	if err := tick.Validate(); err != nil {
		f.logger.Warn().Err(err).Str("symbol", tick.Symbol).Msg("feed tick invalid, skipping")
		return
	}

	// Block until we can send - never drop ticks
	select {
	case f.out <- tick:
	case <-f.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *WS) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					f.logger.Debug().Err(err).Msg("feed ping failed")
				}
			}
			f.connMu.Unlock()
		}
	}
}

// Ensure WS implements Feed
var _ Feed = (*WS)(nil)
