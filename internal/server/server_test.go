package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
)

type fakeStatus struct{ st engine.Status }

func (f fakeStatus) Status() engine.Status { return f.st }

type fakeLister struct {
	trades []domain.Trade
	err    error
	got    domain.ListOpts
}

func (f *fakeLister) ListTrades(_ context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	f.got = opts
	return f.trades, f.err
}

type fakeCache struct {
	snaps map[string]domain.Snapshot
}

func (f fakeCache) SetQuote(context.Context, domain.Quote) error { return nil }

func (f fakeCache) GetSnapshot(_ context.Context, instrument string) (domain.Snapshot, error) {
	if s, ok := f.snaps[instrument]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

type fakeSource struct {
	snaps map[string]domain.Snapshot
}

func (f fakeSource) Latest(instrument string, _ time.Duration) (domain.Snapshot, bool) {
	s, ok := f.snaps[instrument]
	return s, ok
}

type fakeLimiter struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.calls <= f.limit, nil
}

func (f *fakeLimiter) Wait(context.Context, string, int, time.Duration) error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	srv    *Server
	lister *fakeLister
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	lister := &fakeLister{trades: []domain.Trade{
		{ID: "t2", Instrument: "EUR/USD", State: domain.TradeSettled, NetProfit: 0.5},
		{ID: "t1", Instrument: "EUR/USD", State: domain.TradeFailed},
	}}
	cache := fakeCache{snaps: map[string]domain.Snapshot{
		"EUR/USD": {
			"alpha": {Venue: "alpha", Instrument: "EUR/USD", Bid: 1.1998, Ask: 1.2000, ObservedAt: now},
			"beta":  {Venue: "beta", Instrument: "EUR/USD", Bid: 1.2008, Ask: 1.2010, ObservedAt: now},
		},
	}}
	source := fakeSource{snaps: map[string]domain.Snapshot{
		"GBP/USD": {"alpha": {Venue: "alpha", Instrument: "GBP/USD", Bid: 1.27, Ask: 1.2702, ObservedAt: now}},
	}}
	status := fakeStatus{st: engine.Status{
		Stats:       domain.PerformanceStats{TotalTrades: 4, SuccessfulTrades: 3},
		Instruments: []string{"EUR/USD", "GBP/USD"},
		Venues:      []string{"alpha", "beta"},
		StartedAt:   now,
	}}
	handlers := Handlers{
		Health: handler.NewHealthHandler("paper", now),
		Status: handler.NewStatusHandler(status, "paper"),
		Trades: handler.NewTradeHandler(lister, nil, discard()),
		Quotes: handler.NewQuoteHandler(cache, source, 5*time.Second, discard()),
	}
	return fixture{srv: NewServer(cfg, handlers, nil, discard()), lister: lister}
}

func (f fixture) get(t *testing.T, path string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestServer_Routes(t *testing.T) {
	f := newFixture(t, Config{Port: 8080})

	rec, body := f.get(t, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "paper", body["mode"])

	rec, body = f.get(t, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	eng := body["engine"].(map[string]any)
	assert.Equal(t, []any{"alpha", "beta"}, eng["venues"])
	assert.EqualValues(t, 4, eng["stats"].(map[string]any)["total_trades"])

	rec, body = f.get(t, "/api/trades/recent?limit=1000&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok, "page summary is present")
	assert.EqualValues(t, 2, summary["total_trades"])
	assert.Equal(t, 500, f.lister.got.Limit, "limit is capped")
	assert.Equal(t, 2, f.lister.got.Offset)

	rec, _ = f.get(t, "/api/trades/recent", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/trades/recent", nil)
	post := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(post, req)
	assert.Equal(t, http.StatusMethodNotAllowed, post.Code, "the API is read-only")
}

func TestServer_Quotes(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name       string
		path       string
		wantCode   int
		wantSource string
		wantBid    string
		wantAsk    string
	}{
		{"cache with slash", "/api/quotes/EUR/USD", http.StatusOK, "cache", "beta", "alpha"},
		{"cache with dash", "/api/quotes/eur-usd", http.StatusOK, "cache", "beta", "alpha"},
		{"aggregator fallback", "/api/quotes/GBP_USD", http.StatusOK, "aggregator", "alpha", "alpha"},
		{"unknown instrument", "/api/quotes/USD/JPY", http.StatusNotFound, "", "", ""},
		{"malformed instrument", "/api/quotes/EURUSD", http.StatusBadRequest, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.get(t, tt.path, nil)
			require.Equal(t, tt.wantCode, rec.Code)
			switch tt.wantCode {
			case http.StatusNotFound:
				assert.Contains(t, body["error"], "no quotes")
				return
			case http.StatusBadRequest:
				assert.Contains(t, body["error"], "BASE/QUOTE")
				return
			}
			assert.Equal(t, tt.wantSource, body["source"])
			assert.Equal(t, tt.wantBid, body["best_bid"].(map[string]any)["venue"])
			assert.Equal(t, tt.wantAsk, body["best_ask"].(map[string]any)["venue"])
		})
	}
}

func TestServer_TradesErrors(t *testing.T) {
	f := newFixture(t, Config{})
	f.lister.err = errors.New("db down")
	rec, body := f.get(t, "/api/trades/recent", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to list trades", body["error"])

	now := time.Now()
	srv := NewServer(Config{}, Handlers{
		Health: handler.NewHealthHandler("paper", now),
		Status: handler.NewStatusHandler(fakeStatus{}, "paper"),
		Trades: handler.NewTradeHandler(nil, nil, discard()),
		Quotes: handler.NewQuoteHandler(nil, nil, time.Second, discard()),
	}, nil, discard())
	req := httptest.NewRequest(http.MethodGet, "/api/trades/recent", nil)
	out := httptest.NewRecorder()
	srv.Handler().ServeHTTP(out, req)
	assert.Equal(t, http.StatusServiceUnavailable, out.Code)
}

func TestServer_Auth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "s3cret"})

	rec, _ := f.get(t, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")

	rec, body := f.get(t, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authentication token", body["error"])

	rec, _ = f.get(t, "/api/status", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.get(t, "/api/status", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.get(t, "/api/status", map[string]string{"X-API-Key": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.get(t, "/api/status?api_key=s3cret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORSAndRateLimit(t *testing.T) {
	limiter := &fakeLimiter{limit: 2}
	f := newFixture(t, Config{
		CORSOrigins:     []string{"https://ops.example"},
		RateLimitPerMin: 2,
		Limiter:         limiter,
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ops.example")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = f.get(t, "/api/health", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = f.get(t, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body := f.get(t, "/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
