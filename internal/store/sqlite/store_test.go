package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "arbengine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func settledTrade(id string, net float64, completed time.Time) domain.Trade {
	opp := domain.Opportunity{ID: "opp-" + id, Instrument: "EUR/USD", BuyVenue: "kraken", SellVenue: "coinbase", BuyPrice: 1.2, SellPrice: 1.2008}
	tr := domain.NewTrade(id, opp, 100, completed.Add(-time.Second))
	tr.ActualBuyPrice = 1.2
	tr.ActualSellPrice = 1.2008
	tr.NetProfit = net
	for _, s := range []domain.TradeState{domain.TradeBuyPlaced, domain.TradeBuyFilled, domain.TradeSellPlaced, domain.TradeSellFilled, domain.TradeSettled} {
		_ = tr.Transition(s, completed)
	}
	return tr
}

func TestStore_TradeRoundTripAndUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tr := domain.NewTrade("t-1", domain.Opportunity{ID: "o-1", Instrument: "EUR/USD", BuyVenue: "a", SellVenue: "b"}, 50, now)
	require.NoError(t, s.AppendTrade(ctx, tr))

	require.NoError(t, tr.Transition(domain.TradeBuyPlaced, now.Add(time.Second)))
	require.NoError(t, tr.Transition(domain.TradeFailed, now.Add(2*time.Second)))
	tr.FailureReason = "buy leg rejected"
	require.NoError(t, s.AppendTrade(ctx, tr))

	got, err := s.GetTrade(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeFailed, got.State)
	assert.Equal(t, "buy leg rejected", got.FailureReason)
	assert.Len(t, got.History, 2)
	assert.True(t, got.CompletedAt.Equal(now.Add(2*time.Second)))

	all, err := s.ListTrades(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetTrade(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_QueryRecentTradesNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendTrade(ctx, settledTrade("a", 1, base)))
	require.NoError(t, s.AppendTrade(ctx, settledTrade("b", -1, base.Add(time.Minute))))
	require.NoError(t, s.AppendTrade(ctx, settledTrade("c", 2, base.Add(2*time.Minute))))
	open := domain.NewTrade("open", domain.Opportunity{Instrument: "EUR/USD"}, 1, base.Add(3*time.Minute))
	require.NoError(t, s.AppendTrade(ctx, open))

	recent, err := s.QueryRecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}

func TestStore_OpportunityExecutedFlag(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	opp := domain.Opportunity{ID: "o-1", Instrument: "GBP/USD", BuyVenue: "a", SellVenue: "b", BuyPrice: 1, SellPrice: 1.01, DetectedAt: at}
	require.NoError(t, s.AppendOpportunity(ctx, opp))
	opp.Executed = true
	require.NoError(t, s.AppendOpportunity(ctx, opp))

	got, err := s.ListOpportunitiesBefore(ctx, at.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Executed)
}

func TestStore_QuoteRetention(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.AddDate(0, 1, 0)

	require.NoError(t, s.AppendQuote(ctx, domain.Quote{Venue: "a", Instrument: "EUR/USD", Bid: 1, Ask: 1.1, ObservedAt: old}))
	require.NoError(t, s.AppendQuote(ctx, domain.Quote{Venue: "a", Instrument: "EUR/USD", Bid: 1, Ask: 1.1, ObservedAt: fresh}))

	cutoff := old.AddDate(0, 0, 7)
	quotes, err := s.ListQuotesBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].ObservedAt.Equal(old))

	n, err := s.DeleteQuotesBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	quotes, err = s.ListQuotesBefore(ctx, fresh.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

func TestStore_PerformanceAndAudit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendPerformance(ctx, domain.PerformanceStats{TotalTrades: 3, SuccessfulTrades: 2, WinRate: 66.7}, time.Now()))
	require.NoError(t, s.Log(ctx, "archive.run", map[string]any{"quotes": 10}))

	var count int64
	require.NoError(t, s.db.Model(&performanceRow{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	require.NoError(t, s.db.Model(&auditRow{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
