package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// PortfolioTimeseriesStore implements storage.PortfolioTimeseriesStore using ClickHouse.
type PortfolioTimeseriesStore struct {
	conn *Conn
}

// NewPortfolioTimeseriesStore creates a new PortfolioTimeseriesStore.
func NewPortfolioTimeseriesStore(conn *Conn) *PortfolioTimeseriesStore {
	return &PortfolioTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PortfolioTimeseriesStore = (*PortfolioTimeseriesStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate timestamp_ms.
func (s *PortfolioTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.PortfolioPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{})
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[p.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[p.TimestampMs] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO portfolio_timeseries (
			timestamp_ms, nav, pnl, realized, unrealized, cash, fees_paid
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			uint64(p.TimestampMs),
			p.NAV, p.PnL, p.Realized, p.Unrealized, p.Cash, p.FeesPaid,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PortfolioTimeseriesStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PortfolioPoint, error) {
	query := `
		SELECT timestamp_ms, nav, pnl, realized, unrealized, cash, fees_paid
		FROM portfolio_timeseries
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPortfolioPoints(rows)
}

// exists checks if a point with the given timestamp exists.
func (s *PortfolioTimeseriesStore) exists(ctx context.Context, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM portfolio_timeseries
		WHERE timestamp_ms = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, uint64(timestampMs)).Scan(&count); err != nil {
		return false, fmt.Errorf("query count: %w", err)
	}

	return count > 0, nil
}

// scanPortfolioPoints scans multiple rows into a slice of PortfolioPoint.
func scanPortfolioPoints(rows driver.Rows) ([]*domain.PortfolioPoint, error) {
	var points []*domain.PortfolioPoint

	for rows.Next() {
		var (
			p  domain.PortfolioPoint
			ts uint64
		)

		err := rows.Scan(&ts, &p.NAV, &p.PnL, &p.Realized, &p.Unrealized, &p.Cash, &p.FeesPaid)
		if err != nil {
			return nil, fmt.Errorf("scan portfolio point row: %w", err)
		}
		p.TimestampMs = int64(ts)

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate portfolio point rows: %w", err)
	}

	return points, nil
}
