package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
)

const publishTimeout = 2 * time.Second

// Record receives every terminal trade from the coordinator.
func (e *Engine) Record(t domain.Trade) {
	e.lifetime.Record(t)
	e.daily.Record(t)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if t.State == domain.TradeSettled && e.gate.StopLossBreached(t) {
		e.logger.WarnContext(ctx, "trade breached stop loss",
			slog.String("trade_id", t.ID),
			slog.Float64("profit_pct", t.ProfitPct()),
		)
	}
	e.publish(ctx, domain.ChannelTrades, t)
	e.appendStream(ctx, domain.StreamTrades, t)
}

func (e *Engine) publish(ctx context.Context, channel string, v any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.WarnContext(ctx, "encode event failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, data); err != nil {
		e.logger.DebugContext(ctx, "publish event failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func (e *Engine) appendStream(ctx context.Context, stream string, v any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.bus.StreamAppend(ctx, stream, data); err != nil {
		e.logger.DebugContext(ctx, "stream append failed", slog.String("stream", stream), slog.String("error", err.Error()))
	}
}

// rollupStats logs, persists and publishes the running statistics, and sends
// the daily summary when the date changes.
func (e *Engine) rollupStats(ctx context.Context) error {
	now := e.now()
	s := e.lifetime.Snapshot()
	m := e.gate.Metrics()
	active := len(e.coord.Active())

	e.logger.InfoContext(ctx, "performance",
		slog.Int("total_trades", s.TotalTrades),
		slog.Int("successful", s.SuccessfulTrades),
		slog.Int("failed", s.FailedTrades),
		slog.Float64("win_rate", s.WinRate),
		slog.Float64("net_profit", s.NetProfit),
		slog.Int("naked_exposures", s.NakedExposures),
		slog.Float64("daily_loss", m.DailyLoss),
		slog.Float64("max_drawdown", m.MaxDrawdown),
		slog.Int("active_trades", active),
	)

	var err error
	if e.recorder != nil {
		err = e.recorder.AppendPerformance(ctx, s, now)
	}
	e.publish(ctx, domain.ChannelStats, map[string]any{"stats": s, "risk": m, "active_trades": active})

	today := dateOf(now)
	e.mu.Lock()
	rolled := !today.Equal(e.statsDay)
	if rolled {
		e.statsDay = today
	}
	e.mu.Unlock()
	if rolled {
		daily := e.daily.Snapshot()
		e.daily.Reset()
		title, msg := notify.DailySummary(daily, active)
		e.notifier.Notify(ctx, domain.EventDailySummary, title, msg)
	}
	return err
}
