package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
)

// Revalidation failures. They skip the opportunity; they are not errors of
// the scan.
var (
	ErrNoBalance     = errors.New("venue balance is not positive")
	ErrPriceSlipped  = errors.New("price moved beyond max slippage")
	errScanCancelled = errors.New("scan cancelled")
)

func (e *Engine) scanTask(ctx context.Context) error {
	_, err := e.ScanOnce(ctx)
	if errors.Is(err, errScanCancelled) {
		return nil
	}
	return err
}

// ScanOnce evaluates every instrument in configured order and launches the
// admitted opportunities. It returns the opportunities detected.
func (e *Engine) ScanOnce(ctx context.Context) ([]domain.Opportunity, error) {
	var found []domain.Opportunity
	for _, inst := range e.cfg.Instruments {
		if ctx.Err() != nil {
			return found, errScanCancelled
		}
		snap := e.agg.Snapshot(ctx, inst)
		if len(snap) < 2 {
			e.logger.DebugContext(ctx, "not enough quotes to compare",
				slog.String("instrument", inst),
				slog.Int("venues", len(snap)),
			)
			continue
		}
		for _, opp := range arbitrage.Detect(snap, e.cfg.MinProfitPct, e.now()) {
			opp.ID = uuid.NewString()
			found = append(found, opp)
			e.handle(ctx, opp)
		}
	}
	return found, nil
}

// handle takes one detected opportunity through recording, the gates,
// revalidation and admission.
func (e *Engine) handle(ctx context.Context, opp domain.Opportunity) {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("instrument", opp.Instrument),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
	)
	log.InfoContext(ctx, "opportunity detected",
		slog.Float64("buy_price", opp.BuyPrice),
		slog.Float64("sell_price", opp.SellPrice),
		slog.Float64("spread_pct", opp.SpreadPct),
		slog.Float64("est_volume", opp.EstVolume),
	)
	e.recordOpportunity(ctx, opp)
	title, msg := notify.Opportunity(opp)
	e.notifier.Notify(ctx, domain.EventOpportunity, title, msg)
	e.publish(ctx, domain.ChannelOpportunities, opp)

	if adv := e.gate.Advise(ctx, opp); !adv.Allowed {
		if e.cfg.AdvisoryEnforce {
			log.InfoContext(ctx, "advisory gate rejected opportunity",
				slog.String("reason", string(adv.Reason)),
				slog.String("detail", adv.Detail),
			)
			return
		}
		log.DebugContext(ctx, "advisory gate would reject",
			slog.String("reason", string(adv.Reason)),
			slog.String("detail", adv.Detail),
		)
	}

	if d := e.gate.Evaluate(opp); !d.Allowed {
		e.rejected(ctx, log, d)
		return
	}

	balance, err := e.revalidate(ctx, opp)
	if err != nil {
		log.InfoContext(ctx, "opportunity no longer valid", slog.String("error", err.Error()))
		return
	}

	unlock, err := e.lockRoute(ctx, opp)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.InfoContext(ctx, "route is being traded elsewhere")
		} else {
			log.WarnContext(ctx, "route lock unavailable", slog.String("error", err.Error()))
		}
		return
	}

	tk, d := e.coord.Admit(opp, balance)
	if !d.Allowed {
		unlock()
		e.rejected(ctx, log, d)
		return
	}

	opp.Executed = true
	e.recordOpportunity(ctx, opp)
	log.InfoContext(ctx, "executing trade",
		slog.String("trade_id", tk.TradeID),
		slog.Float64("size", tk.Size),
	)
	e.coord.Launch(ctx, tk, func(domain.Trade, error) { unlock() })
}

func (e *Engine) rejected(ctx context.Context, log *slog.Logger, d domain.Decision) {
	log.InfoContext(ctx, "risk gate rejected opportunity",
		slog.String("reason", string(d.Reason)),
		slog.String("detail", d.Detail),
	)
	switch d.Reason {
	case domain.RejectDailyLoss, domain.RejectDrawdown:
		e.riskAlert(ctx, d.Reason)
	}
}

// riskAlert notifies at most once per reason per day.
func (e *Engine) riskAlert(ctx context.Context, reason domain.RejectReason) {
	today := dateOf(e.now())
	e.mu.Lock()
	if last, ok := e.alerted[reason]; ok && last.Equal(today) {
		e.mu.Unlock()
		return
	}
	e.alerted[reason] = today
	e.mu.Unlock()

	m := e.gate.Metrics()
	title, msg := notify.RiskAlert(m, reason)
	e.notifier.Notify(ctx, domain.EventRiskAlert, title, msg)
	e.publish(ctx, domain.ChannelRisk, map[string]any{"reason": reason, "metrics": m})
}

// revalidate re-reads balances and prices just before admission. It returns
// the buy venue balance used for sizing.
func (e *Engine) revalidate(ctx context.Context, opp domain.Opportunity) (float64, error) {
	buy, err := e.venues.Get(opp.BuyVenue)
	if err != nil {
		return 0, err
	}
	sell, err := e.venues.Get(opp.SellVenue)
	if err != nil {
		return 0, err
	}

	buyBal, err := buy.Balance(ctx, e.cfg.Currency)
	if err != nil {
		return 0, fmt.Errorf("balance on %s: %w", opp.BuyVenue, err)
	}
	sellBal, err := sell.Balance(ctx, e.cfg.Currency)
	if err != nil {
		return 0, fmt.Errorf("balance on %s: %w", opp.SellVenue, err)
	}
	if buyBal <= 0 || sellBal <= 0 {
		return 0, fmt.Errorf("%w: %s=%.2f %s=%.2f", ErrNoBalance, opp.BuyVenue, buyBal, opp.SellVenue, sellBal)
	}

	buyQ, err := buy.FetchQuote(ctx, opp.Instrument)
	if err != nil {
		return 0, err
	}
	sellQ, err := sell.FetchQuote(ctx, opp.Instrument)
	if err != nil {
		return 0, err
	}
	if buyQ.Ask > opp.BuyPrice*(1+e.cfg.MaxSlippage) {
		return 0, fmt.Errorf("%w: %s ask %.6f vs %.6f", ErrPriceSlipped, opp.BuyVenue, buyQ.Ask, opp.BuyPrice)
	}
	if sellQ.Bid < opp.SellPrice*(1-e.cfg.MaxSlippage) {
		return 0, fmt.Errorf("%w: %s bid %.6f vs %.6f", ErrPriceSlipped, opp.SellVenue, sellQ.Bid, opp.SellPrice)
	}
	return buyBal, nil
}

// lockRoute takes the cross-process route lock when a lock manager is
// configured.
func (e *Engine) lockRoute(ctx context.Context, opp domain.Opportunity) (func(), error) {
	if e.locks == nil {
		return func() {}, nil
	}
	return e.locks.Acquire(ctx, "trade:"+opp.Route(), e.cfg.LockTTL)
}

func (e *Engine) recordOpportunity(ctx context.Context, opp domain.Opportunity) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.AppendOpportunity(ctx, opp); err != nil {
		e.logger.WarnContext(ctx, "record opportunity failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}
