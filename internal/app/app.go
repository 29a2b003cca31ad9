// Package app provides the top-level application lifecycle for the arbitrage
// engine. It wires together storage, caches, blob storage, venues and
// notifications and runs the engine, status server and archiver together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/aggregator"
	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/pipeline"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/alanyoungcy/arbengine/internal/server"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/server/ws"
	"github.com/alanyoungcy/arbengine/internal/store/postgres"
	"github.com/alanyoungcy/arbengine/internal/store/sqlite"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the engine and its companions, and
// blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("storage", a.cfg.Storage.Backend),
	)

	stopProfiler, err := startProfiler(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, stopProfiler)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	eng, agg := a.buildEngine(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })

	if a.cfg.Server.Enabled {
		var hub *ws.Hub
		if deps.SignalBus != nil {
			hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
				Mode:        a.cfg.Mode,
				Venues:      deps.Venues.Names(),
				Instruments: a.cfg.Engine.Instruments,
			})
			g.Go(func() error { return ignoreCanceled(hub.Run(ctx)) })
		}
		srv := a.buildServer(deps, eng, agg, hub)
		g.Go(func() error { return srv.Run(ctx, a.cfg.Engine.ShutdownTimeout.Duration) })
	}

	if deps.Archiver != nil {
		arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error { return ignoreCanceled(arch.RunCron(ctx, a.cfg.Archive.Cron)) })
	}

	return g.Wait()
}

func (a *App) buildEngine(deps *Dependencies) (*engine.Engine, *aggregator.Aggregator) {
	cfg := a.cfg

	gateOpts := []risk.Option{risk.WithLocation(cfg.Location())}
	if cfg.Risk.AdvisoryHistory && deps.Store != nil {
		gateOpts = append(gateOpts, risk.WithHistory(deps.Store))
	}
	gate := risk.NewGate(risk.Config{
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		MaxConcurrentTrades:  cfg.Risk.MaxConcurrentTrades,
		DrawdownLimit:        cfg.Risk.DrawdownLimit,
		MinProfitPct:         cfg.Arbitrage.MinProfitPct,
		MaxSpreadPct:         cfg.Risk.MaxSpreadPct,
		MaxPositionSize:      cfg.Arbitrage.MaxPositionSize,
		RiskPerTrade:         cfg.Arbitrage.RiskPerTrade,
		StopLoss:             cfg.Risk.StopLossPct,
		InitialBalance:       cfg.Risk.InitialBalance,
		AssumedLossPct:       cfg.Risk.AssumedLossPct,
		MinRiskReward:        cfg.Risk.MinRiskReward,
		ConsecutiveLossLimit: cfg.Risk.ConsecutiveLossLimit,
		RecentTradeWindow:    cfg.Risk.RecentTradeWindow,
	}, a.logger, gateOpts...)

	var aggOpts []aggregator.Option
	if deps.Recorder != nil {
		aggOpts = append(aggOpts, aggregator.WithRecorder(deps.Recorder))
	}
	if deps.QuoteCache != nil {
		aggOpts = append(aggOpts, aggregator.WithCache(deps.QuoteCache))
	}
	agg := aggregator.New(deps.Venues.All(), aggregator.Config{
		CycleTimeout:         cfg.Engine.CycleTimeout.Duration,
		MaxQuoteAge:          cfg.Engine.MaxQuoteAge.Duration,
		MaxConcurrentFetches: cfg.Engine.MaxConcurrentFetches,
	}, a.logger, aggOpts...)

	engDeps := engine.Deps{
		Aggregator: agg,
		Gate:       gate,
		Venues:     deps.Venues,
		Executor: executor.Config{
			ExecutionDelay:    cfg.Arbitrage.ExecutionDelay.Duration,
			ProtectiveTimeout: cfg.Arbitrage.ProtectiveTimeout.Duration,
			CancelTimeout:     cfg.Arbitrage.CancelTimeout.Duration,
			DefaultFeePct:     cfg.Arbitrage.DefaultFeePct,
			DedupTTL:          executor.DefaultConfig().DedupTTL,
		},
		Bus:   deps.SignalBus,
		Locks: deps.LockManager,
	}
	// Typed nils must not reach the engine's optional interfaces.
	if deps.Recorder != nil {
		engDeps.Recorder = deps.Recorder
	}
	if deps.Notifier != nil {
		engDeps.Notifier = deps.Notifier
	}

	eng := engine.New(engine.Config{
		Instruments:            cfg.Engine.Instruments,
		PriceUpdateInterval:    cfg.Engine.PriceUpdateInterval.Duration,
		ArbitrageCheckInterval: cfg.Engine.ArbitrageCheckInterval.Duration,
		MonitorInterval:        cfg.Engine.MonitorInterval.Duration,
		StatsInterval:          cfg.Engine.StatsInterval.Duration,
		TradeTimeout:           cfg.Engine.TradeTimeout.Duration,
		MinProfitPct:           cfg.Arbitrage.MinProfitPct,
		MaxSlippage:            cfg.Arbitrage.MaxSlippage,
		AdvisoryEnforce:        cfg.Risk.AdvisoryEnforce,
		Currency:               cfg.Engine.Currency,
		LockTTL:                cfg.Engine.LockTTL.Duration,
		ShutdownTimeout:        cfg.Engine.ShutdownTimeout.Duration,
	}, engDeps, a.logger)
	return eng, agg
}

func (a *App) buildServer(deps *Dependencies, eng *engine.Engine, agg *aggregator.Aggregator, hub *ws.Hub) *server.Server {
	var (
		lister  domain.TradeLister
		history domain.TradeHistory
	)
	if deps.Store != nil {
		lister = deps.Store
		history = deps.Store
	}
	return server.NewServer(server.Config{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
		Limiter:         deps.RateLimiter,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, time.Now()),
		Status: handler.NewStatusHandler(eng, a.cfg.Mode),
		Trades: handler.NewTradeHandler(lister, history, a.logger),
		Quotes: handler.NewQuoteHandler(deps.QuoteCache, agg, a.cfg.Engine.MaxQuoteAge.Duration, a.logger),
	}, hub, a.logger)
}

// Migrate brings the configured store's schema up to date and returns what
// was applied. SQLite migrates through gorm on open; Postgres applies the
// embedded SQL files.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	switch strings.ToLower(a.cfg.Storage.Backend) {
	case "sqlite":
		st, err := sqlite.Open(a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
		defer st.Close()
		return []string{"sqlite:" + a.cfg.Storage.SQLitePath}, nil
	case "postgres":
		pgClient, err := postgres.New(ctx, postgresConfig(a.cfg.Postgres))
		if err != nil {
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
		defer pgClient.Close()
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
		return applied, nil
	default:
		return nil, errors.New("app: migrate: no storage backend configured")
	}
}

// ArchiveOnce runs a single archive pass immediately.
func (a *App) ArchiveOnce(ctx context.Context) (pipeline.RunReport, error) {
	if a.cfg.S3.Bucket == "" {
		return pipeline.RunReport{}, errors.New("app: archive: no s3 bucket configured")
	}
	st, closeStore, err := openStore(ctx, a.cfg)
	if err != nil {
		return pipeline.RunReport{}, fmt.Errorf("app: archive: %w", err)
	}
	if st == nil {
		return pipeline.RunReport{}, errors.New("app: archive: no storage backend configured")
	}
	defer closeStore()

	archiver, err := newArchiver(ctx, a.cfg, st, a.logger)
	if err != nil {
		return pipeline.RunReport{}, fmt.Errorf("app: archive: %w", err)
	}
	return pipeline.NewArchiver(archiver, a.cfg.Archive.RetentionDays, a.logger).Run(ctx)
}

// ListArchive lists archived objects of one kind ("quotes", "opportunities",
// "trades"), or every kind when kind is empty.
func (a *App) ListArchive(ctx context.Context, kind string) ([]domain.BlobInfo, error) {
	r, err := a.archiveReader(ctx)
	if err != nil {
		return nil, err
	}
	prefix := "archive/"
	if kind != "" {
		prefix += kind + "/"
	}
	return r.List(ctx, prefix)
}

// CopyArchive writes the archived object at path to w.
func (a *App) CopyArchive(ctx context.Context, path string, w io.Writer) (int64, error) {
	r, err := a.archiveReader(ctx)
	if err != nil {
		return 0, err
	}
	body, err := r.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return io.Copy(w, body)
}

func (a *App) archiveReader(ctx context.Context) (*s3blob.Reader, error) {
	if a.cfg.S3.Bucket == "" {
		return nil, errors.New("app: archive: no s3 bucket configured")
	}
	c, err := newS3Client(ctx, a.cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("app: archive: %w", err)
	}
	return s3blob.NewReader(c), nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
