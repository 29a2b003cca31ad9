package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// QuoteCache implements domain.QuoteCache. Each instrument is a hash at
// "quotes:{instrument}" with one JSON encoded quote per venue field. The hash
// expires after ttl without writes.
type QuoteCache struct {
	c   *Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &QuoteCache{c: c, ttl: ttl}
}

// SetQuote stores q as the latest quote for its venue and instrument.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: encode quote %s/%s: %w", q.Venue, q.Instrument, err)
	}
	key := qc.c.Key("quotes", q.Instrument)
	pipe := qc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, q.Venue, data)
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.Venue, q.Instrument, err)
	}
	return nil
}

// GetSnapshot returns the cached quotes of every venue for instrument, or
// domain.ErrNotFound when nothing is cached.
func (qc *QuoteCache) GetSnapshot(ctx context.Context, instrument string) (domain.Snapshot, error) {
	vals, err := qc.c.rdb.HGetAll(ctx, qc.c.Key("quotes", instrument)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get quotes %s: %w", instrument, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeSnapshot(vals)
}

func decodeSnapshot(vals map[string]string) (domain.Snapshot, error) {
	snap := make(domain.Snapshot, len(vals))
	for venue, raw := range vals {
		var q domain.Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("redis: decode quote %s: %w", venue, err)
		}
		snap[venue] = q
	}
	return snap, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
