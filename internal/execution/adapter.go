package execution

import (
	"context"
	"errors"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// ErrClosed is returned by Submit after the adapter has been closed.
var ErrClosed = errors.New("execution adapter closed")

// Adapter executes orders against a venue.
//
// Submit is asynchronous: it validates the order shape and enqueues it.
// Every accepted order surfaces exactly one terminal outcome on Events,
// an order.fill or an order.reject, usually preceded by an order.ack.
// Venue failures become reject events carrying the failure reason, never
// silently dropped orders.
type Adapter interface {
	// Submit enqueues an order. A malformed order fails synchronously
	// with a validation error and produces no events. Submit blocks
	// when the venue queue is full until space frees, the context is
	// done, or the adapter closes.
	Submit(ctx context.Context, order domain.Order) error

	// Events returns the adapter's outcome stream. The channel closes
	// after Close has drained all queued orders to a terminal event.
	Events() <-chan domain.Event

	// Close stops accepting submissions, drains queued orders to
	// terminal events, then closes the event stream.
	Close() error
}
