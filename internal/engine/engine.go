// Package engine runs the periodic tasks of the arbitrage engine: price
// collection, opportunity scanning, the active-trade monitor and the stats
// rollup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/aggregator"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/alanyoungcy/arbengine/internal/stats"
)

// Config holds the task intervals and scan parameters.
type Config struct {
	// Instruments are scanned in this order every cycle.
	Instruments            []string
	PriceUpdateInterval    time.Duration
	ArbitrageCheckInterval time.Duration
	MonitorInterval        time.Duration
	StatsInterval          time.Duration
	// TradeTimeout is the age at which the monitor forces a trade terminal.
	TradeTimeout time.Duration
	MinProfitPct float64
	// MaxSlippage is a fraction of the detected price (0.0005 = 0.05%).
	MaxSlippage float64
	// AdvisoryEnforce makes the advisory gate reject instead of only log.
	AdvisoryEnforce bool
	// Currency is the quote currency whose balance sizes trades.
	Currency        string
	LockTTL         time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig mirrors the stock timings: prices every second, scans every
// 5s, monitor every 5s with a 30s trade timeout, stats every minute.
func DefaultConfig() Config {
	return Config{
		Instruments:            []string{"EUR/USD", "GBP/USD", "USD/JPY"},
		PriceUpdateInterval:    time.Second,
		ArbitrageCheckInterval: 5 * time.Second,
		MonitorInterval:        5 * time.Second,
		StatsInterval:          time.Minute,
		TradeTimeout:           30 * time.Second,
		MinProfitPct:           0.1,
		MaxSlippage:            0.0005,
		Currency:               "USD",
		LockTTL:                time.Minute,
		ShutdownTimeout:        30 * time.Second,
	}
}

// Deps are the collaborators of the engine. Recorder, Notifier, Bus and
// Locks are optional.
type Deps struct {
	Aggregator *aggregator.Aggregator
	Gate       *risk.Gate
	Venues     domain.VenueLookup
	Executor   executor.Config
	Recorder   domain.Recorder
	Notifier   domain.Notifier
	Bus        domain.SignalBus
	Locks      domain.LockManager
}

// Status is the engine's read model for the status API.
type Status struct {
	Stats        domain.PerformanceStats     `json:"stats"`
	Daily        domain.PerformanceStats     `json:"daily"`
	Risk         domain.RiskMetrics          `json:"risk"`
	Sizing       domain.SizingRecommendation `json:"sizing"`
	ActiveTrades []domain.Trade              `json:"active_trades"`
	Instruments  []string                    `json:"instruments"`
	Venues       []string                    `json:"venues"`
	StartedAt    time.Time                   `json:"started_at"`
}

// Engine owns the periodic tasks and the terminal-trade fan-out.
type Engine struct {
	cfg      Config
	agg      *aggregator.Aggregator
	gate     *risk.Gate
	venues   domain.VenueLookup
	coord    *executor.Coordinator
	recorder domain.Recorder
	notifier domain.Notifier
	bus      domain.SignalBus
	locks    domain.LockManager
	logger   *slog.Logger
	now      func() time.Time

	lifetime *stats.Tracker
	daily    *stats.Tracker

	mu        sync.Mutex
	statsDay  time.Time
	alerted   map[domain.RejectReason]time.Time
	startedAt time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for dates and detection times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds the engine and its execution coordinator.
func New(cfg Config, deps Deps, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		agg:      deps.Aggregator,
		gate:     deps.Gate,
		venues:   deps.Venues,
		recorder: deps.Recorder,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		locks:    deps.Locks,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
		lifetime: stats.NewTracker(),
		daily:    stats.NewTracker(),
		alerted:  make(map[domain.RejectReason]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.cfg.Currency == "" {
		e.cfg.Currency = "USD"
	}
	e.statsDay = dateOf(e.now())

	execOpts := []executor.Option{
		executor.WithNotifier(e.notifier),
		executor.WithSink(e),
		executor.WithClock(e.now),
	}
	if e.recorder != nil {
		execOpts = append(execOpts, executor.WithRecorder(e.recorder))
	}
	e.coord = executor.New(deps.Executor, deps.Venues, deps.Gate, logger, execOpts...)
	return e
}

// Coordinator exposes the execution coordinator.
func (e *Engine) Coordinator() *executor.Coordinator { return e.coord }

// Run starts every task and blocks until ctx ends. In-flight trades are then
// given ShutdownTimeout to reach a terminal state.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.startedAt = e.now()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine starting",
		slog.Any("instruments", e.cfg.Instruments),
		slog.Any("venues", e.agg.Venues()),
	)
	title, msg := notify.Startup(len(e.cfg.Instruments), len(e.agg.Venues()))
	e.notifier.Notify(ctx, domain.EventLifecycle, title, msg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.every(gctx, "price_monitor", e.cfg.PriceUpdateInterval, e.collectPrices) })
	g.Go(func() error { return e.every(gctx, "arbitrage_scan", e.cfg.ArbitrageCheckInterval, e.scanTask) })
	g.Go(func() error { return e.every(gctx, "trade_monitor", e.cfg.MonitorInterval, e.monitorTrades) })
	g.Go(func() error { return e.every(gctx, "stats_rollup", e.cfg.StatsInterval, e.rollupStats) })
	err := g.Wait()

	e.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// every runs fn on a ticker until ctx ends. Errors and panics are logged and
// the task continues.
func (e *Engine) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("engine: task %s: interval must be positive", name)
	}
	log := e.logger.With(slog.String("task", name))
	log.DebugContext(ctx, "task started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.safely(ctx, fn); err != nil && ctx.Err() == nil {
				log.ErrorContext(ctx, "task cycle failed", slog.String("error", err.Error()))
				title, msg := notify.Error(err, name)
				e.notifier.Notify(ctx, domain.EventError, title, msg)
			}
		}
	}
}

func (e *Engine) safely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (e *Engine) collectPrices(ctx context.Context) error {
	snaps := e.agg.CollectAll(ctx, e.cfg.Instruments)
	quotes := 0
	for _, s := range snaps {
		quotes += len(s)
	}
	e.logger.DebugContext(ctx, "prices collected",
		slog.Int("instruments", len(snaps)),
		slog.Int("quotes", quotes),
	)
	return nil
}

func (e *Engine) monitorTrades(ctx context.Context) error {
	expired := e.coord.ExpireStale(e.cfg.TradeTimeout)
	dropped := e.coord.CleanupDedup()
	e.logger.DebugContext(ctx, "trade monitor",
		slog.Int("active", len(e.coord.Active())),
		slog.Int("expired", len(expired)),
		slog.Int("dedup_dropped", dropped),
	)
	return nil
}

// Status returns a point-in-time view of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	started := e.startedAt
	e.mu.Unlock()
	book := e.gate.Metrics()
	return Status{
		Stats:        e.lifetime.Snapshot(),
		Daily:        e.daily.Snapshot(),
		Risk:         book,
		Sizing:       e.gate.SizingRecommendation(book.CurrentBalance),
		ActiveTrades: e.coord.Active(),
		Instruments:  append([]string(nil), e.cfg.Instruments...),
		Venues:       e.agg.Venues(),
		StartedAt:    started,
	}
}

func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	active := len(e.coord.Active())
	e.logger.InfoContext(ctx, "engine stopping, waiting for in-flight trades", slog.Int("active", active))
	if err := e.coord.Wait(ctx); err != nil {
		e.logger.ErrorContext(ctx, "in-flight trades did not finish before shutdown",
			slog.Int("active", len(e.coord.Active())),
			slog.String("error", err.Error()),
		)
	}
	if err := e.rollupStats(ctx); err != nil {
		e.logger.WarnContext(ctx, "final stats rollup failed", slog.String("error", err.Error()))
	}

	final := e.lifetime.Snapshot()
	title, msg := notify.Shutdown(final)
	e.notifier.Notify(ctx, domain.EventLifecycle, title, msg)
	e.logger.InfoContext(ctx, "engine stopped",
		slog.Int("total_trades", final.TotalTrades),
		slog.Float64("net_profit", final.NetProfit),
		slog.Float64("win_rate", final.WinRate),
	)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.EventKind, string, string) {}
func (nopNotifier) Escalate(context.Context, string, string)                {}
