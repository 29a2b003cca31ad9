// Package store holds the storage-agnostic pieces shared by the postgres and
// sqlite backends.
package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// DefaultQueueSize bounds the number of pending writes.
const DefaultQueueSize = 1024

// writeTimeout caps a single backend write.
const writeTimeout = 5 * time.Second

type record struct {
	kind string
	do   func(ctx context.Context) error
}

// AsyncRecorder decouples the engine from storage latency. Appends are queued
// and written by one worker; when the queue is full the record is dropped and
// counted. Append errors are logged, never returned.
type AsyncRecorder struct {
	next    domain.Recorder
	logger  *slog.Logger
	queue   chan record
	dropped atomic.Int64
	failed  atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncRecorder starts the worker. queueSize <= 0 uses DefaultQueueSize.
func NewAsyncRecorder(next domain.Recorder, queueSize int, logger *slog.Logger) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &AsyncRecorder{
		next:   next,
		logger: logger.With(slog.String("component", "recorder")),
		queue:  make(chan record, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := rec.do(ctx); err != nil {
			r.failed.Add(1)
			r.logger.Warn("record write failed",
				slog.String("kind", rec.kind),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

func (r *AsyncRecorder) enqueue(kind string, do func(ctx context.Context) error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- record{kind: kind, do: do}:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("record queue full, dropping",
			slog.String("kind", kind),
			slog.Int64("dropped_total", n),
		)
	}
}

func (r *AsyncRecorder) AppendQuote(_ context.Context, q domain.Quote) error {
	r.enqueue("quote", func(ctx context.Context) error { return r.next.AppendQuote(ctx, q) })
	return nil
}

func (r *AsyncRecorder) AppendOpportunity(_ context.Context, o domain.Opportunity) error {
	r.enqueue("opportunity", func(ctx context.Context) error { return r.next.AppendOpportunity(ctx, o) })
	return nil
}

// AppendTrade copies the state history so later transitions of the caller's
// trade do not race with the write.
func (r *AsyncRecorder) AppendTrade(_ context.Context, t domain.Trade) error {
	t.History = append([]domain.StateChange(nil), t.History...)
	r.enqueue("trade", func(ctx context.Context) error { return r.next.AppendTrade(ctx, t) })
	return nil
}

func (r *AsyncRecorder) AppendPerformance(_ context.Context, p domain.PerformanceStats, at time.Time) error {
	r.enqueue("performance", func(ctx context.Context) error { return r.next.AppendPerformance(ctx, p, at) })
	return nil
}

// QueryRecentTrades reads through to the backend synchronously.
func (r *AsyncRecorder) QueryRecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return r.next.QueryRecentTrades(ctx, limit)
}

// Dropped returns how many records were discarded because the queue was full.
func (r *AsyncRecorder) Dropped() int64 { return r.dropped.Load() }

// Failed returns how many backend writes returned an error.
func (r *AsyncRecorder) Failed() int64 { return r.failed.Load() }

// Close stops accepting records and waits for the queue to drain or ctx to
// end.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.Recorder = (*AsyncRecorder)(nil)
