package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

const instrument = "EUR/USD"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type memRecorder struct {
	mu     sync.Mutex
	states []domain.TradeState
}

func (m *memRecorder) AppendQuote(context.Context, domain.Quote) error             { return nil }
func (m *memRecorder) AppendOpportunity(context.Context, domain.Opportunity) error { return nil }
func (m *memRecorder) AppendPerformance(context.Context, domain.PerformanceStats, time.Time) error {
	return nil
}
func (m *memRecorder) QueryRecentTrades(context.Context, int) ([]domain.Trade, error) {
	return nil, nil
}

func (m *memRecorder) AppendTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, t.State)
	return nil
}

type memNotifier struct {
	mu          sync.Mutex
	kinds       []domain.EventKind
	escalations []string
}

func (m *memNotifier) Notify(_ context.Context, kind domain.EventKind, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func (m *memNotifier) Escalate(_ context.Context, _, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations = append(m.escalations, msg)
}

type memSink struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (m *memSink) Record(t domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
}

func (m *memSink) Trades() []domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Trade(nil), m.trades...)
}

type fixture struct {
	alpha, beta *venue.Paper
	gate        *risk.Gate
	rec         *memRecorder
	notifier    *memNotifier
	sink        *memSink
	coord       *Coordinator
}

func newFixture(t *testing.T, mutate func(*Config, *risk.Config)) *fixture {
	t.Helper()

	paper := func(name string, bid, ask float64) *venue.Paper {
		p := venue.NewPaper(venue.PaperConfig{
			Name:        name,
			DefaultBase: (bid + ask) / 2,
			FeePct:      0.01,
			Balances:    map[string]float64{"USD": 10000},
			Seed:        1,
		})
		p.PinQuote(instrument, bid, ask, 5000)
		return p
	}
	f := &fixture{
		alpha:    paper("alpha", 1.1998, 1.2000),
		beta:     paper("beta", 1.2008, 1.2010),
		rec:      &memRecorder{},
		notifier: &memNotifier{},
		sink:     &memSink{},
	}
	reg, err := venue.NewRegistry(f.alpha, f.beta)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ExecutionDelay = 50 * time.Millisecond
	cfg.ProtectiveTimeout = 200 * time.Millisecond
	cfg.CancelTimeout = 200 * time.Millisecond
	rcfg := risk.DefaultConfig()
	rcfg.MinProfitPct = 0.05
	if mutate != nil {
		mutate(&cfg, &rcfg)
	}

	f.gate = risk.NewGate(rcfg, discardLogger())
	f.coord = New(cfg, reg, f.gate, discardLogger(),
		WithRecorder(f.rec),
		WithNotifier(f.notifier),
		WithSink(f.sink),
	)
	return f
}

func opportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID:         id,
		Instrument: instrument,
		BuyVenue:   "alpha",
		SellVenue:  "beta",
		BuyPrice:   1.2000,
		SellPrice:  1.2008,
		SpreadAbs:  0.0008,
		SpreadPct:  0.0667,
		EstVolume:  5000,
		DetectedAt: time.Now(),
	}
}

func (f *fixture) admit(t *testing.T, id string) Ticket {
	t.Helper()
	tk, d := f.coord.Admit(opportunity(id), 10000)
	require.True(t, d.Allowed, "admission rejected: %s %s", d.Reason, d.Detail)
	require.True(t, f.gate.IsActive(tk.TradeID))
	return tk
}

func TestCoordinator_SettlesBothLegs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tk := f.admit(t, "opp-1")
	assert.Equal(t, 1000.0, tk.Size)

	tr, err := f.coord.Execute(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, domain.TradeSettled, tr.State)
	assert.InDelta(t, 1.2000, tr.ActualBuyPrice, 1e-9)
	assert.InDelta(t, 1.2008, tr.ActualSellPrice, 1e-9)
	assert.InDelta(t, 0.8, tr.GrossProfit, 1e-6)
	assert.InDelta(t, 0.24008, tr.Fees, 1e-6)
	assert.InDelta(t, 0.55992, tr.NetProfit, 1e-6)
	assert.False(t, tr.NakedExposure)
	assert.False(t, tr.CompletedAt.IsZero())

	assert.False(t, f.gate.IsActive(tk.TradeID))
	assert.InDelta(t, 10000.55992, f.gate.Metrics().CurrentBalance, 1e-6)
	assert.Equal(t, []domain.TradeState{
		domain.TradeInit, domain.TradeBuyPlaced, domain.TradeBuyFilled,
		domain.TradeSellPlaced, domain.TradeSellFilled, domain.TradeSettled,
	}, f.rec.states)
	assert.Equal(t, []domain.EventKind{domain.EventTradeSettled}, f.notifier.kinds)
	require.Len(t, f.sink.Trades(), 1)
	assert.Empty(t, f.coord.Active())
}

func TestCoordinator_BuyLegTimeoutNeverPlacesSell(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.alpha.HoldOrders(domain.OrderSideBuy, true)

	tk := f.admit(t, "opp-1")
	tr, err := f.coord.Execute(context.Background(), tk)

	var timeout *domain.LegFillTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, domain.OrderSideBuy, timeout.Side)
	assert.Equal(t, domain.TradeFailed, tr.State)
	assert.False(t, tr.NakedExposure)
	assert.Empty(t, f.beta.Orders(), "sell leg must not be placed")
	assert.False(t, f.gate.IsActive(tk.TradeID))
	assert.Zero(t, f.gate.Metrics().DailyLoss)
	assert.Empty(t, f.notifier.escalations)
}

func TestCoordinator_BuyPlacementFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.alpha.RejectOrders(domain.OrderSideBuy, domain.ErrOrderRejected)

	tk := f.admit(t, "opp-1")
	tr, err := f.coord.Execute(context.Background(), tk)

	var placement *domain.OrderPlacementError
	require.ErrorAs(t, err, &placement)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, domain.TradeFailed, tr.State)
	assert.True(t, tr.BuyOrder.IsZero())
	assert.Empty(t, f.beta.Orders())
	assert.False(t, f.gate.IsActive(tk.TradeID))
	assert.Equal(t, []domain.EventKind{domain.EventTradeFailed}, f.notifier.kinds)
}

func TestCoordinator_NakedPosition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		setup         func(f *fixture)
		wantProtected bool
		wantCause     any
	}{
		{
			name: "sell rejected, protective sell fills",
			setup: func(f *fixture) {
				f.beta.RejectOrders(domain.OrderSideSell, domain.ErrOrderRejected)
			},
			wantProtected: true,
			wantCause:     new(*domain.OrderPlacementError),
		},
		{
			name: "sell never fills, protective sell fills",
			setup: func(f *fixture) {
				f.beta.HoldOrders(domain.OrderSideSell, true)
			},
			wantProtected: true,
			wantCause:     new(*domain.LegFillTimeoutError),
		},
		{
			name: "protective sell rejected too",
			setup: func(f *fixture) {
				f.beta.RejectOrders(domain.OrderSideSell, domain.ErrOrderRejected)
				f.alpha.RejectOrders(domain.OrderSideSell, domain.ErrOrderRejected)
			},
			wantProtected: false,
			wantCause:     new(*domain.OrderPlacementError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil)
			tt.setup(f)

			tk := f.admit(t, "opp-1")
			tr, err := f.coord.Execute(context.Background(), tk)

			var naked *domain.NakedPositionError
			require.ErrorAs(t, err, &naked)
			require.ErrorAs(t, err, tt.wantCause)
			assert.Equal(t, tt.wantProtected, naked.Protected)
			assert.Equal(t, "alpha", naked.Venue)
			assert.Equal(t, 1000.0, naked.Size)

			assert.Equal(t, domain.TradeFailed, tr.State)
			assert.True(t, tr.NakedExposure)
			assert.False(t, f.gate.IsActive(tk.TradeID))
			require.Len(t, f.notifier.escalations, 1)

			if tt.wantProtected {
				assert.False(t, tr.ProtectiveOrder.IsZero())
				assert.InDelta(t, 1.1998, naked.ProtectivePrice, 1e-9)
				// (1.1998-1.2000)*1000 minus 0.01% on both notionals.
				assert.InDelta(t, -0.43998, tr.NetProfit, 1e-6)
				assert.InDelta(t, 0.43998, f.gate.Metrics().DailyLoss, 1e-6)
				assert.Contains(t, f.notifier.escalations[0], "Flattened")
			} else {
				assert.Zero(t, f.gate.Metrics().DailyLoss)
				assert.Contains(t, f.notifier.escalations[0], "INVENTORY STILL OPEN")
			}
		})
	}
}

func TestCoordinator_ExpireStaleForcesTerminalState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config, _ *risk.Config) {
		c.ExecutionDelay = 10 * time.Second
	})
	f.alpha.HoldOrders(domain.OrderSideBuy, true)

	tk := f.admit(t, "opp-1")
	f.coord.Launch(context.Background(), tk, nil)

	require.Eventually(t, func() bool {
		active := f.coord.Active()
		return len(active) == 1 && active[0].State == domain.TradeBuyPlaced
	}, 2*time.Second, 5*time.Millisecond)

	assert.Empty(t, f.coord.ExpireStale(time.Hour))
	assert.Equal(t, []string{tk.TradeID}, f.coord.ExpireStale(0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.coord.Wait(ctx))

	trades := f.sink.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeFailed, trades[0].State)
	assert.Empty(t, f.coord.Active())
	assert.False(t, f.gate.IsActive(tk.TradeID))
}

func TestCoordinator_AdmissionIsRaceFree(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(_ *Config, r *risk.Config) {
		r.MaxConcurrentTrades = 2
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		reasons = map[domain.RejectReason]int{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opp := opportunity(fmt.Sprintf("opp-%d", i))
			opp.SellVenue = fmt.Sprintf("beta-%d", i)
			_, d := f.coord.Admit(opp, 10000)
			mu.Lock()
			defer mu.Unlock()
			if d.Allowed {
				allowed++
				return
			}
			reasons[d.Reason]++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, allowed)
	assert.Equal(t, 18, reasons[domain.RejectConcurrency])
	assert.Equal(t, 2, f.gate.Metrics().ActiveTrades)
}

func TestCoordinator_AdmitRejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, d := f.coord.Admit(opportunity("opp-1"), 0)
	assert.Equal(t, domain.RejectSize, d.Reason)

	first, d := f.coord.Admit(opportunity("opp-1"), 10000)
	require.True(t, d.Allowed)
	_, d = f.coord.Admit(opportunity("opp-2"), 10000)
	assert.Equal(t, domain.RejectDuplicate, d.Reason, "same route under a fresh id")

	other := opportunity("opp-3")
	other.BuyVenue, other.SellVenue = "beta", "alpha"
	second, d := f.coord.Admit(other, 10000)
	require.True(t, d.Allowed)
	assert.Less(t, first.TradeID, second.TradeID, "trade ids sort by creation")
}

func TestCoordinator_RouteReleasedWhenTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tk := f.admit(t, "opp-1")
	_, d := f.coord.Admit(opportunity("opp-2"), 10000)
	require.Equal(t, domain.RejectDuplicate, d.Reason)

	_, err := f.coord.Execute(context.Background(), tk)
	require.NoError(t, err)

	f.admit(t, "opp-3")
}

func TestDedup(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute, func() time.Time { return now })

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))

	d.Forget("a")
	assert.False(t, d.IsDuplicate("a"))

	now = now.Add(2 * time.Minute)
	assert.False(t, d.IsDuplicate("a"), "expired entries are admitted again")
	assert.False(t, d.IsDuplicate("b"))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, d.Cleanup())
}

func TestSettlement(t *testing.T) {
	t.Parallel()

	p := settlement(100, 101, 10, 0.1, 0.2)
	assert.InDelta(t, 10, p.gross, 1e-9)
	// 1000*0.1% + 1010*0.2%
	assert.InDelta(t, 3.02, p.fees, 1e-9)
	assert.InDelta(t, 6.98, p.net, 1e-9)

	p = settlement(1.2, 1.2, 100, 0, 0)
	assert.Zero(t, p.net)
}
