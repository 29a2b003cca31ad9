package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest quote per venue/instrument.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	// GetSnapshot returns every cached venue quote for the instrument.
	GetSnapshot(ctx context.Context, instrument string) (Snapshot, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channels published by the engine.
const (
	ChannelOpportunities = "arb:opportunities"
	ChannelTrades        = "arb:trades"
	ChannelRisk          = "arb:risk"
	ChannelStats         = "arb:stats"
	StreamTrades         = "arb:stream:trades"
)
