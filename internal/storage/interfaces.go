package storage

import (
	"context"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
)

// StoredEvent is an event with its store-assigned position in the total order.
type StoredEvent struct {
	Seq   uint64 // monotonic, starts at 1
	Event domain.Event
}

// EventStore is the append-only event log. The assigned sequence is the
// authoritative total order of the system; payload timestamps are metadata.
type EventStore interface {
	// Append adds events atomically in argument order, assigning each the
	// next sequence. Safe under concurrent callers: appends serialize
	// internally, and no completed append is lost, duplicated, or reordered
	// relative to other completed appends. Returns ErrDuplicateKey if an
	// event id was appended before, ErrInvalidInput for malformed events,
	// and *StorageError for backend failures (retryable).
	Append(ctx context.Context, events ...domain.Event) error

	// Read returns all events with sequence > sinceSeq, ascending by
	// sequence, as a consistent snapshot: it never observes part of an
	// in-flight append. Read(ctx, 0) returns the full log.
	Read(ctx context.Context, sinceSeq uint64) ([]StoredEvent, error)

	// LastSeq returns the highest assigned sequence, 0 for an empty log.
	LastSeq(ctx context.Context) (uint64, error)
}

// PortfolioTimeseriesStore holds the analytics equity curve, written from
// portfolio snapshots. It is a read-side sink: losing it never loses events.
type PortfolioTimeseriesStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate timestamp_ms.
	InsertBulk(ctx context.Context, points []*domain.PortfolioPoint) error

	// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PortfolioPoint, error)
}
