package memory

import (
	"context"
	"sync"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
// Appends serialize on a mutex; sequence equals slice index + 1.
type EventStore struct {
	mu   sync.RWMutex
	data []storage.StoredEvent
	ids  map[string]bool
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make([]storage.StoredEvent, 0),
		ids:  make(map[string]bool),
	}
}

// Append adds events atomically in argument order. Returns ErrDuplicateKey
// if an event id exists (including intra-batch duplicates).
func (s *EventStore) Append(_ context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if ev.ID == "" || !ev.Type.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchIDs := make(map[string]bool, len(events))
	for _, ev := range events {
		if s.ids[ev.ID] || batchIDs[ev.ID] {
			return storage.ErrDuplicateKey
		}
		batchIDs[ev.ID] = true
	}

	for _, ev := range events {
		s.data = append(s.data, storage.StoredEvent{
			Seq:   uint64(len(s.data) + 1),
			Event: ev,
		})
		s.ids[ev.ID] = true
	}

	return nil
}

// Read returns all events with sequence > sinceSeq, ascending. The result
// is a snapshot copy taken under the read lock.
func (s *EventStore) Read(_ context.Context, sinceSeq uint64) ([]storage.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sinceSeq >= uint64(len(s.data)) {
		return nil, nil
	}

	out := make([]storage.StoredEvent, len(s.data)-int(sinceSeq))
	copy(out, s.data[sinceSeq:])
	return out, nil
}

// LastSeq returns the highest assigned sequence.
func (s *EventStore) LastSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.data)), nil
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
