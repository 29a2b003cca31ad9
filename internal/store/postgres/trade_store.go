package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// TradeStore persists arbitrage trades.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, opportunity_id, instrument, buy_venue, sell_venue, size,
	expected_buy, expected_sell, state, buy_order_id, sell_order_id, protective_order_id,
	actual_buy_price, actual_sell_price, fees, gross_profit, net_profit,
	naked_exposure, failure_reason, history, started_at, completed_at`

// Upsert writes the trade, replacing an earlier row with the same id.
func (s *TradeStore) Upsert(ctx context.Context, t domain.Trade) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("postgres: marshal trade history %s: %w", t.ID, err)
	}
	var completed *time.Time
	if !t.CompletedAt.IsZero() {
		completed = &t.CompletedAt
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (
			id, opportunity_id, instrument, buy_venue, sell_venue, size,
			expected_buy, expected_sell, state, buy_order_id, sell_order_id, protective_order_id,
			actual_buy_price, actual_sell_price, fees, gross_profit, net_profit, profit_pct,
			naked_exposure, failure_reason, execution_ms, history, started_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24
		)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			buy_order_id = EXCLUDED.buy_order_id,
			sell_order_id = EXCLUDED.sell_order_id,
			protective_order_id = EXCLUDED.protective_order_id,
			actual_buy_price = EXCLUDED.actual_buy_price,
			actual_sell_price = EXCLUDED.actual_sell_price,
			fees = EXCLUDED.fees,
			gross_profit = EXCLUDED.gross_profit,
			net_profit = EXCLUDED.net_profit,
			profit_pct = EXCLUDED.profit_pct,
			naked_exposure = EXCLUDED.naked_exposure,
			failure_reason = EXCLUDED.failure_reason,
			execution_ms = EXCLUDED.execution_ms,
			history = EXCLUDED.history,
			completed_at = EXCLUDED.completed_at`,
		t.ID, t.OpportunityID, t.Instrument, t.BuyVenue, t.SellVenue, t.Size,
		t.ExpectedBuy, t.ExpectedSell, string(t.State), t.BuyOrder.ID, t.SellOrder.ID, t.ProtectiveOrder.ID,
		t.ActualBuyPrice, t.ActualSellPrice, t.Fees, t.GrossProfit, t.NetProfit, t.ProfitPct(),
		t.NakedExposure, t.FailureReason, t.Duration().Milliseconds(), history, t.StartedAt, completed,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert trade %s: %w", t.ID, err)
	}
	return nil
}

// RecentTerminal returns up to limit finished trades, newest first.
func (s *TradeStore) RecentTerminal(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeSelectCols+` FROM trades
		WHERE completed_at IS NOT NULL ORDER BY completed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListTrades pages through trades by start time, newest first.
func (s *TradeStore) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query, args := applyListOpts(`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`, nil, "started_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListTradesBefore returns trades started before the cutoff, oldest first.
func (s *TradeStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeSelectCols+` FROM trades
		WHERE started_at < $1 ORDER BY started_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t         domain.Trade
			state     string
			history   []byte
			completed *time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.OpportunityID, &t.Instrument, &t.BuyVenue, &t.SellVenue, &t.Size,
			&t.ExpectedBuy, &t.ExpectedSell, &state, &t.BuyOrder.ID, &t.SellOrder.ID, &t.ProtectiveOrder.ID,
			&t.ActualBuyPrice, &t.ActualSellPrice, &t.Fees, &t.GrossProfit, &t.NetProfit,
			&t.NakedExposure, &t.FailureReason, &history, &t.StartedAt, &completed,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.State = domain.TradeState(state)
		if completed != nil {
			t.CompletedAt = *completed
		}
		if len(history) > 0 {
			if err := json.Unmarshal(history, &t.History); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal trade history %s: %w", t.ID, err)
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
