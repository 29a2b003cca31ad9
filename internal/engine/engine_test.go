package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/aggregator"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

const instrument = "EUR/USD"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type memNotifier struct {
	mu    sync.Mutex
	kinds []domain.EventKind
}

func (m *memNotifier) Notify(_ context.Context, kind domain.EventKind, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func (m *memNotifier) Escalate(context.Context, string, string) {
	m.Notify(context.Background(), domain.EventNakedPosition, "", "")
}

func (m *memNotifier) Count(kind domain.EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func (m *memNotifier) Kinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EventKind(nil), m.kinds...)
}

type memRecorder struct {
	mu    sync.Mutex
	opps  []domain.Opportunity
	perf  int
	trade int
}

func (m *memRecorder) AppendQuote(context.Context, domain.Quote) error { return nil }
func (m *memRecorder) AppendOpportunity(_ context.Context, o domain.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opps = append(m.opps, o)
	return nil
}
func (m *memRecorder) AppendTrade(context.Context, domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trade++
	return nil
}
func (m *memRecorder) AppendPerformance(context.Context, domain.PerformanceStats, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perf++
	return nil
}
func (m *memRecorder) QueryRecentTrades(context.Context, int) ([]domain.Trade, error) {
	return nil, nil
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type fixture struct {
	alpha, beta *venue.Paper
	gate        *risk.Gate
	notifier    *memNotifier
	recorder    *memRecorder
	engine      *Engine
}

type options struct {
	cfg   func(*Config)
	risk  func(*risk.Config)
	exec  func(*executor.Config)
	locks domain.LockManager
	clock func() time.Time
}

func newFixture(t *testing.T, o options) *fixture {
	t.Helper()

	paper := func(name string, bid, ask float64) *venue.Paper {
		p := venue.NewPaper(venue.PaperConfig{
			Name:     name,
			FeePct:   0.01,
			Balances: map[string]float64{"USD": 10000},
			Seed:     7,
		})
		p.PinQuote(instrument, bid, ask, 5000)
		return p
	}
	f := &fixture{
		alpha:    paper("alpha", 1.1998, 1.2000),
		beta:     paper("beta", 1.2020, 1.2022),
		notifier: &memNotifier{},
		recorder: &memRecorder{},
	}
	reg, err := venue.NewRegistry(f.alpha, f.beta)
	require.NoError(t, err)

	rcfg := risk.DefaultConfig()
	if o.risk != nil {
		o.risk(&rcfg)
	}
	f.gate = risk.NewGate(rcfg, discardLogger())

	cfg := DefaultConfig()
	cfg.Instruments = []string{instrument}
	cfg.PriceUpdateInterval = 10 * time.Millisecond
	cfg.ArbitrageCheckInterval = 10 * time.Millisecond
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.StatsInterval = 20 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	if o.cfg != nil {
		o.cfg(&cfg)
	}

	ecfg := executor.DefaultConfig()
	ecfg.ExecutionDelay = 100 * time.Millisecond
	if o.exec != nil {
		o.exec(&ecfg)
	}

	agg := aggregator.New(reg.All(), aggregator.DefaultConfig(), discardLogger())
	var opts []Option
	if o.clock != nil {
		opts = append(opts, WithClock(o.clock))
	}
	f.engine = New(cfg, Deps{
		Aggregator: agg,
		Gate:       f.gate,
		Venues:     reg,
		Executor:   ecfg,
		Recorder:   f.recorder,
		Notifier:   f.notifier,
		Locks:      o.locks,
	}, discardLogger(), opts...)
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Coordinator().Wait(ctx))
}

func TestScanOnce_ExecutesAdmittedOpportunity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, options{})

	found, err := f.engine.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alpha", found[0].BuyVenue)
	assert.Equal(t, "beta", found[0].SellVenue)
	assert.NotEmpty(t, found[0].ID)

	f.drain(t)

	st := f.engine.Status()
	assert.Equal(t, 1, st.Stats.TotalTrades)
	assert.Equal(t, 1, st.Stats.SuccessfulTrades)
	assert.Positive(t, st.Stats.NetProfit)
	assert.Equal(t, st.Stats, st.Daily)
	assert.Empty(t, st.ActiveTrades)
	assert.Zero(t, st.Risk.ActiveTrades)

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	require.Len(t, f.recorder.opps, 2)
	assert.False(t, f.recorder.opps[0].Executed)
	assert.True(t, f.recorder.opps[1].Executed)
	assert.Equal(t, 1, f.notifier.Count(domain.EventOpportunity))
	assert.Equal(t, 1, f.notifier.Count(domain.EventTradeSettled))
}

func TestScanOnce_RouteInFlightIsNotTradedTwice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, options{exec: func(c *executor.Config) { c.ExecutionDelay = 10 * time.Second }})
	f.alpha.HoldOrders(domain.OrderSideBuy, true)
	coord := f.engine.Coordinator()

	for i := 0; i < 2; i++ {
		found, err := f.engine.ScanOnce(context.Background())
		require.NoError(t, err)
		require.Len(t, found, 1)
	}
	require.Len(t, coord.Active(), 1)
	assert.Equal(t, 1, f.gate.Metrics().ActiveTrades)
	placed := func(n int) func() bool {
		return func() bool { return len(f.alpha.Orders()) == n }
	}
	require.Eventually(t, placed(1), time.Second, 5*time.Millisecond)

	// Force the held trade terminal; the route opens up again.
	coord.ExpireStale(0)
	f.drain(t)
	assert.Len(t, f.alpha.Orders(), 1)
	assert.Empty(t, coord.Active())

	_, err := f.engine.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, coord.Active(), 1)
	require.Eventually(t, placed(2), time.Second, 5*time.Millisecond)

	coord.ExpireStale(0)
	f.drain(t)
	assert.Len(t, f.alpha.Orders(), 2)
}

func TestScanOnce_SkipsInvalidatedOpportunities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  options
		setup func(f *fixture)
	}{
		{
			name: "buy price slipped after detection",
			setup: func(f *fixture) {
				f.engine.agg.Collect(context.Background(), instrument)
				f.alpha.PinQuote(instrument, 1.2005, 1.2010, 5000)
			},
		},
		{
			name:  "no balance on sell venue",
			setup: func(f *fixture) { f.beta.SetBalance("USD", 0) },
		},
		{
			name:  "route locked by another engine",
			opts:  options{locks: heldLocks{}},
			setup: func(*fixture) {},
		},
		{
			name: "advisory gate enforced",
			opts: options{cfg: func(c *Config) { c.AdvisoryEnforce = true }},
			setup: func(*fixture) {},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.opts)
			tt.setup(f)

			found, err := f.engine.ScanOnce(context.Background())
			require.NoError(t, err)
			assert.Len(t, found, 1)
			f.drain(t)

			assert.Empty(t, f.alpha.Orders())
			assert.Empty(t, f.beta.Orders())
			assert.Zero(t, f.engine.Status().Stats.TotalTrades)
		})
	}
}

func TestScanOnce_RiskAlertOncePerDay(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, options{
		risk:  func(r *risk.Config) { r.MaxDailyLoss = 0 },
		clock: clock,
	})

	for i := 0; i < 3; i++ {
		_, err := f.engine.ScanOnce(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.notifier.Count(domain.EventRiskAlert))
	assert.Empty(t, f.alpha.Orders())

	mu.Lock()
	now = now.AddDate(0, 0, 1)
	mu.Unlock()
	_, err := f.engine.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.notifier.Count(domain.EventRiskAlert))
}

func TestRollupStats_DailySummaryOnDateChange(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 23, 59, 0, 0, time.Local)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, options{clock: clock})
	f.engine.Record(domain.Trade{ID: "t1", State: domain.TradeSettled, NetProfit: 1, Size: 1, ActualBuyPrice: 1})

	require.NoError(t, f.engine.rollupStats(context.Background()))
	assert.Zero(t, f.notifier.Count(domain.EventDailySummary))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	require.NoError(t, f.engine.rollupStats(context.Background()))
	require.NoError(t, f.engine.rollupStats(context.Background()))

	assert.Equal(t, 1, f.notifier.Count(domain.EventDailySummary))
	st := f.engine.Status()
	assert.Equal(t, 1, st.Stats.TotalTrades, "lifetime stats survive the rollover")
	assert.Zero(t, st.Daily.TotalTrades)
	assert.Equal(t, 3, f.recorder.perf)
}

func TestRun_StartsAndStopsCleanly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.engine.Status().Stats.TotalTrades > 0
	}, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	kinds := f.notifier.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, domain.EventLifecycle, kinds[0])
	assert.Equal(t, domain.EventLifecycle, kinds[len(kinds)-1])
	assert.Empty(t, f.engine.Coordinator().Active())
	assert.Zero(t, f.gate.Metrics().ActiveTrades)
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	t.Parallel()
	f := newFixture(t, options{cfg: func(c *Config) { c.MonitorInterval = 0 }})

	err := f.engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade_monitor")
}
