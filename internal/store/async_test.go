package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

type memRecorder struct {
	mu     sync.Mutex
	quotes []domain.Quote
	trades []domain.Trade
	block  chan struct{}
	fail   error
}

func (m *memRecorder) wait() {
	if m.block != nil {
		<-m.block
	}
}

func (m *memRecorder) AppendQuote(_ context.Context, q domain.Quote) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.quotes = append(m.quotes, q)
	return nil
}

func (m *memRecorder) AppendOpportunity(context.Context, domain.Opportunity) error { return nil }

func (m *memRecorder) AppendTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memRecorder) AppendPerformance(context.Context, domain.PerformanceStats, time.Time) error {
	return nil
}

func (m *memRecorder) QueryRecentTrades(context.Context, int) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Trade(nil), m.trades...), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAsyncRecorder_WritesInOrder(t *testing.T) {
	t.Parallel()

	mem := &memRecorder{}
	r := NewAsyncRecorder(mem, 16, discardLogger())
	for i := 0; i < 5; i++ {
		require.NoError(t, r.AppendQuote(context.Background(), domain.Quote{Venue: "a", Bid: float64(i + 1)}))
	}
	require.NoError(t, r.Close(context.Background()))

	require.Len(t, mem.quotes, 5)
	for i, q := range mem.quotes {
		assert.Equal(t, float64(i+1), q.Bid)
	}
	assert.Zero(t, r.Dropped())
}

func TestAsyncRecorder_DropsWhenFull(t *testing.T) {
	t.Parallel()

	mem := &memRecorder{block: make(chan struct{})}
	r := NewAsyncRecorder(mem, 1, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = r.AppendQuote(context.Background(), domain.Quote{Venue: "a"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append blocked on a full queue")
	}

	close(mem.block)
	require.NoError(t, r.Close(context.Background()))
	assert.Positive(t, r.Dropped())
	assert.Equal(t, int64(10), r.Dropped()+int64(len(mem.quotes)))
}

func TestAsyncRecorder_ErrorsAreCountedNotReturned(t *testing.T) {
	t.Parallel()

	mem := &memRecorder{fail: errors.New("disk full")}
	r := NewAsyncRecorder(mem, 4, discardLogger())
	assert.NoError(t, r.AppendQuote(context.Background(), domain.Quote{}))
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, int64(1), r.Failed())
}

func TestAsyncRecorder_TradeHistoryIsCopied(t *testing.T) {
	t.Parallel()

	mem := &memRecorder{}
	r := NewAsyncRecorder(mem, 4, discardLogger())

	tr := domain.NewTrade("t-1", domain.Opportunity{}, 1, time.Now())
	require.NoError(t, tr.Transition(domain.TradeBuyPlaced, time.Now()))
	require.NoError(t, r.AppendTrade(context.Background(), tr))
	tr.History[0].To = domain.TradeCancelled

	require.NoError(t, r.Close(context.Background()))
	recent, err := r.QueryRecentTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.TradeBuyPlaced, recent[0].History[0].To)
}

func TestAsyncRecorder_AppendAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	r := NewAsyncRecorder(&memRecorder{}, 4, discardLogger())
	require.NoError(t, r.Close(context.Background()))
	assert.NotPanics(t, func() { _ = r.AppendQuote(context.Background(), domain.Quote{}) })
}
