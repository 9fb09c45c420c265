package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// PortfolioTimeseriesStore is an in-memory implementation of
// storage.PortfolioTimeseriesStore.
type PortfolioTimeseriesStore struct {
	mu   sync.RWMutex
	data []*domain.PortfolioPoint
	keys map[int64]bool
}

// NewPortfolioTimeseriesStore creates a new in-memory portfolio timeseries store.
func NewPortfolioTimeseriesStore() *PortfolioTimeseriesStore {
	return &PortfolioTimeseriesStore{
		data: make([]*domain.PortfolioPoint, 0),
		keys: make(map[int64]bool),
	}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate timestamp_ms.
func (s *PortfolioTimeseriesStore) InsertBulk(_ context.Context, points []*domain.PortfolioPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int64]bool)
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		if s.keys[p.TimestampMs] || batchKeys[p.TimestampMs] {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.TimestampMs] = true
	}

	for _, p := range points {
		copy := *p
		s.data = append(s.data, &copy)
		s.keys[p.TimestampMs] = true
	}

	return nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PortfolioTimeseriesStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.PortfolioPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PortfolioPoint
	for _, p := range s.data {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PortfolioTimeseriesStore = (*PortfolioTimeseriesStore)(nil)
