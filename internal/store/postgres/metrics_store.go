package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// MetricsStore keeps periodic performance snapshots.
type MetricsStore struct {
	pool *pgxpool.Pool
}

// NewMetricsStore creates a new MetricsStore backed by the given connection
// pool.
func NewMetricsStore(pool *pgxpool.Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// Insert stores one snapshot.
func (s *MetricsStore) Insert(ctx context.Context, p domain.PerformanceStats, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO performance_metrics (
			total_trades, successful_trades, failed_trades, total_profit, total_loss,
			net_profit, win_rate, average_profit, naked_exposures, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.TotalTrades, p.SuccessfulTrades, p.FailedTrades, p.TotalProfit, p.TotalLoss,
		p.NetProfit, p.WinRate, p.AverageProfit, p.NakedExposures, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert performance metrics: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot or domain.ErrNotFound.
func (s *MetricsStore) Latest(ctx context.Context) (domain.PerformanceStats, time.Time, error) {
	var (
		p  domain.PerformanceStats
		at time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT total_trades, successful_trades, failed_trades, total_profit, total_loss,
			net_profit, win_rate, average_profit, naked_exposures, recorded_at
		FROM performance_metrics ORDER BY recorded_at DESC LIMIT 1`,
	).Scan(&p.TotalTrades, &p.SuccessfulTrades, &p.FailedTrades, &p.TotalProfit, &p.TotalLoss,
		&p.NetProfit, &p.WinRate, &p.AverageProfit, &p.NakedExposures, &at)
	if err != nil {
		if isNoRows(err) {
			return p, at, domain.ErrNotFound
		}
		return p, at, fmt.Errorf("postgres: latest performance metrics: %w", err)
	}
	return p, at, nil
}
