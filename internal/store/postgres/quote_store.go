package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// QuoteStore persists observed quotes in the quotes table.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

const insertQuote = `INSERT INTO quotes (venue, instrument, bid, ask, last, volume, observed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Insert stores one quote.
func (s *QuoteStore) Insert(ctx context.Context, q domain.Quote) error {
	if _, err := s.pool.Exec(ctx, insertQuote, q.Venue, q.Instrument, q.Bid, q.Ask, q.Last, q.Volume, q.ObservedAt); err != nil {
		return fmt.Errorf("postgres: insert quote %s/%s: %w", q.Venue, q.Instrument, err)
	}
	return nil
}

// InsertBatch stores quotes in one round trip.
func (s *QuoteStore) InsertBatch(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(insertQuote, q.Venue, q.Instrument, q.Bid, q.Ask, q.Last, q.Volume, q.ObservedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range quotes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert quote batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListQuotesBefore returns quotes observed strictly before the cutoff, oldest
// first.
func (s *QuoteStore) ListQuotesBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	rows, err := s.pool.Query(ctx, `SELECT venue, instrument, bid, ask, last, volume, observed_at
		FROM quotes WHERE observed_at < $1 ORDER BY observed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quotes before: %w", err)
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		var q domain.Quote
		if err := rows.Scan(&q.Venue, &q.Instrument, &q.Bid, &q.Ask, &q.Last, &q.Volume, &q.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// DeleteQuotesBefore removes quotes observed before the cutoff.
func (s *QuoteStore) DeleteQuotesBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete quotes before: %w", err)
	}
	return tag.RowsAffected(), nil
}
