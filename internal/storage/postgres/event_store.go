package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// appendLockKey serializes appends across all writers. Sequences therefore
// commit in assignment order and a reader never observes seq N before N-1.
const appendLockKey = int64(8150)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append adds events atomically in argument order. The transaction takes an
// advisory lock before inserting so concurrent appends serialize; BIGSERIAL
// assigns the sequence.
func (s *EventStore) Append(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if ev.ID == "" || !ev.Type.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &storage.StorageError{Op: "begin append tx", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return &storage.StorageError{Op: "acquire append lock", Err: err}
	}

	query := `
		INSERT INTO events (id, type, data, ts)
		VALUES ($1, $2, $3, $4)
	`

	for _, ev := range events {
		_, err := tx.Exec(ctx, query,
			ev.ID,
			ev.Type.String(),
			[]byte(ev.Data),
			ev.TS,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return &storage.StorageError{Op: "insert event", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &storage.StorageError{Op: "commit append tx", Err: err}
	}

	return nil
}

// Read retrieves all events with sequence > sinceSeq, ascending by sequence.
func (s *EventStore) Read(ctx context.Context, sinceSeq uint64) ([]storage.StoredEvent, error) {
	query := `
		SELECT seq, id, type, data, ts
		FROM events
		WHERE seq > $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, int64(sinceSeq))
	if err != nil {
		return nil, &storage.StorageError{Op: "read events", Err: err}
	}
	defer rows.Close()

	return scanStoredEvents(rows)
}

// LastSeq returns the highest assigned sequence, 0 for an empty log.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&last)
	if err != nil {
		return 0, &storage.StorageError{Op: "query last seq", Err: err}
	}
	return uint64(last), nil
}

// scanStoredEvents scans multiple rows into a slice of StoredEvent.
func scanStoredEvents(rows pgx.Rows) ([]storage.StoredEvent, error) {
	var events []storage.StoredEvent

	for rows.Next() {
		var (
			seq     int64
			id      string
			rawType string
			data    []byte
			ts      int64
		)

		if err := rows.Scan(&seq, &id, &rawType, &data, &ts); err != nil {
			return nil, &storage.StorageError{Op: "scan event row", Err: err}
		}

		events = append(events, storage.StoredEvent{
			Seq: uint64(seq),
			Event: domain.Event{
				ID:   id,
				Type: domain.EventType(rawType),
				Data: json.RawMessage(data),
				TS:   ts,
			},
		})
	}

	if err := rows.Err(); err != nil {
		return nil, &storage.StorageError{Op: "iterate event rows", Err: err}
	}

	return events, nil
}
