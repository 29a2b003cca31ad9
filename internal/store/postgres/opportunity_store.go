package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OpportunityStore persists detected opportunities.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, instrument, buy_venue, sell_venue, buy_price, sell_price,
	spread_abs, spread_pct, est_volume, executed, detected_at`

// Insert stores an opportunity; a repeated id is ignored.
func (s *OpportunityStore) Insert(ctx context.Context, o domain.Opportunity) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO opportunities (`+opportunityCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		o.ID, o.Instrument, o.BuyVenue, o.SellVenue, o.BuyPrice, o.SellPrice,
		o.SpreadAbs, o.SpreadPct, o.EstVolume, o.Executed, o.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", o.ID, err)
	}
	return nil
}

// MarkExecuted flags an opportunity as traded.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE opportunities SET executed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List pages through opportunities, newest first.
func (s *OpportunityStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	query, args := applyListOpts(`SELECT `+opportunityCols+` FROM opportunities WHERE 1=1`, nil, "detected_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// ListOpportunitiesBefore returns opportunities detected before the cutoff,
// oldest first.
func (s *OpportunityStore) ListOpportunitiesBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+opportunityCols+` FROM opportunities
		WHERE detected_at < $1 ORDER BY detected_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

func scanOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(&o.ID, &o.Instrument, &o.BuyVenue, &o.SellVenue, &o.BuyPrice, &o.SellPrice,
			&o.SpreadAbs, &o.SpreadPct, &o.EstVolume, &o.Executed, &o.DetectedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
