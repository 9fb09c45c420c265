package feed

import (
	"context"
	"errors"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// Feed errors
var (
	ErrAlreadyConnected = errors.New("feed already connected")
	ErrClosed           = errors.New("feed closed")
)

// Feed delivers an ordered market tick stream.
//
// Sends on the returned channel block: a slow consumer slows the feed
// down instead of losing ticks. The channel closes when the feed is
// exhausted or closed. A Feed is single-use; Connect may be called
// once.
type Feed interface {
	// Connect starts the stream.
	Connect(ctx context.Context) (<-chan domain.MarketTick, error)

	// Close stops the stream and releases resources.
	Close() error
}
