package executor

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
)

// naked handles a filled buy leg whose sell leg could not be completed. It
// market-sells the inventory back on the buy venue, escalates, and fails the
// trade with a *domain.NakedPositionError.
func (r *tradeRun) naked(buyVenue domain.Venue, cause error) (domain.Trade, error) {
	t := &r.trade
	c := r.c
	// The protective sale must run even if the trade was expired.
	ctx := context.WithoutCancel(r.ctx)
	r.ctx = ctx
	t.NakedExposure = true

	nerr := &domain.NakedPositionError{
		TradeID:    t.ID,
		Instrument: t.Instrument,
		Venue:      t.BuyVenue,
		Size:       t.Size,
		BuyPrice:   t.ActualBuyPrice,
		Cause:      cause,
	}
	r.log().ErrorContext(ctx, "naked position, flattening on buy venue",
		slog.String("venue", t.BuyVenue),
		slog.Float64("size", t.Size),
		slog.String("cause", cause.Error()),
	)

	if price, ok := r.protect(ctx, buyVenue); ok {
		nerr.Protected = true
		nerr.ProtectivePrice = price
		t.ActualSellPrice = price
		fee := c.feePct(ctx, buyVenue, t.Instrument)
		r.applySettlement(settlement(t.ActualBuyPrice, price, t.Size, fee, fee))
	}

	t.FailureReason = nerr.Error()
	r.transition(domain.TradeFailed)
	if nerr.Protected {
		c.risk.RecordTrade(*t)
	} else {
		c.risk.Release(t.ID)
	}

	title, msg := notify.NakedPosition(nerr)
	c.escalate(ctx, title, msg)
	c.finish(*t)
	return cloneTrade(*t), nerr
}

// protect places the protective market sell and waits for it to fill.
func (r *tradeRun) protect(ctx context.Context, v domain.Venue) (float64, bool) {
	t := &r.trade
	c := r.c

	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProtectiveTimeout+c.cfg.CancelTimeout)
	defer cancel()

	ref, err := v.PlaceOrder(pctx, r.marketOrder(domain.OrderSideSell, "protect"))
	if err != nil {
		r.log().ErrorContext(ctx, "protective sell rejected, inventory still open",
			slog.String("venue", v.Name()),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	t.ProtectiveOrder = ref
	c.update(*t)

	rep, err := v.AwaitFill(pctx, ref, c.cfg.ProtectiveTimeout)
	if err != nil {
		late, filled := r.abandon(v, ref)
		if !filled {
			r.log().ErrorContext(ctx, "protective sell not filled, inventory still open",
				slog.String("venue", v.Name()),
				slog.String("order_id", ref.ID),
				slog.String("error", err.Error()),
			)
			return 0, false
		}
		rep = late
	}
	price := fillPrice(rep, t.ActualBuyPrice)
	r.log().WarnContext(ctx, "naked position flattened",
		slog.String("venue", v.Name()),
		slog.Float64("price", price),
	)
	return price, true
}
