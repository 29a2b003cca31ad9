package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
)

// tradeRun is one trade's pass through the state machine. It is confined to
// a single goroutine.
type tradeRun struct {
	c      *Coordinator
	ctx    context.Context
	cancel context.CancelFunc
	trade  domain.Trade
}

func (r *tradeRun) log() *slog.Logger {
	return r.c.logger.With(
		slog.String("trade_id", r.trade.ID),
		slog.String("instrument", r.trade.Instrument),
	)
}

// transition moves the trade forward and persists it.
func (r *tradeRun) transition(next domain.TradeState) {
	if err := r.trade.Transition(next, r.c.now()); err != nil {
		// Only reachable through a coordinator bug.
		r.log().Error("illegal trade transition", slog.String("error", err.Error()))
		return
	}
	r.c.update(r.trade)
	r.c.persist(r.ctx, r.trade)
}

func (r *tradeRun) execute() (domain.Trade, error) {
	defer r.cancel()
	t := &r.trade
	c := r.c

	buyVenue, err := c.venues.Get(t.BuyVenue)
	if err != nil {
		return r.fail(&domain.OrderPlacementError{Venue: t.BuyVenue, Side: domain.OrderSideBuy, Err: err})
	}
	sellVenue, err := c.venues.Get(t.SellVenue)
	if err != nil {
		return r.fail(&domain.OrderPlacementError{Venue: t.SellVenue, Side: domain.OrderSideSell, Err: err})
	}
	r.c.persist(r.ctx, *t)

	// Buy leg.
	buyRef, err := buyVenue.PlaceOrder(r.ctx, r.marketOrder(domain.OrderSideBuy, "buy"))
	if err != nil {
		return r.fail(asPlacementError(err, t.BuyVenue, domain.OrderSideBuy))
	}
	t.BuyOrder = buyRef
	r.transition(domain.TradeBuyPlaced)

	buyReport, err := buyVenue.AwaitFill(r.ctx, buyRef, c.cfg.ExecutionDelay)
	if err != nil {
		late, filled := r.abandon(buyVenue, buyRef)
		if !filled {
			return r.fail(asTimeoutError(err, buyRef, c.cfg.ExecutionDelay))
		}
		// The buy filled while it was being cancelled: the inventory is ours
		// but the sell leg was never attempted.
		buyReport = late
		r.recordBuyFill(buyReport)
		return r.naked(buyVenue, asTimeoutError(err, buyRef, c.cfg.ExecutionDelay))
	}
	r.recordBuyFill(buyReport)

	// Sell leg.
	sellRef, err := sellVenue.PlaceOrder(r.ctx, r.marketOrder(domain.OrderSideSell, "sell"))
	if err != nil {
		return r.naked(buyVenue, asPlacementError(err, t.SellVenue, domain.OrderSideSell))
	}
	t.SellOrder = sellRef
	r.transition(domain.TradeSellPlaced)

	sellReport, err := sellVenue.AwaitFill(r.ctx, sellRef, c.cfg.ExecutionDelay)
	if err != nil {
		late, filled := r.abandon(sellVenue, sellRef)
		if !filled {
			return r.naked(buyVenue, asTimeoutError(err, sellRef, c.cfg.ExecutionDelay))
		}
		sellReport = late
	}
	t.ActualSellPrice = fillPrice(sellReport, t.ExpectedSell)
	r.transition(domain.TradeSellFilled)

	return r.settle(buyVenue, sellVenue)
}

func (r *tradeRun) marketOrder(side domain.OrderSide, leg string) domain.OrderRequest {
	return domain.OrderRequest{
		Instrument: r.trade.Instrument,
		Side:       side,
		Size:       r.trade.Size,
		ClientID:   r.trade.ID + "-" + leg,
	}
}

func (r *tradeRun) recordBuyFill(rep domain.OrderReport) {
	r.trade.ActualBuyPrice = fillPrice(rep, r.trade.ExpectedBuy)
	r.transition(domain.TradeBuyFilled)
}

// abandon cancels an order on a detached context. If the venue reports the
// order filled after all, the fill is returned.
func (r *tradeRun) abandon(v domain.Venue, ref domain.OrderRef) (domain.OrderReport, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.c.cfg.CancelTimeout)
	defer cancel()

	ok, err := v.CancelOrder(ctx, ref)
	if err != nil {
		r.log().WarnContext(ctx, "cancel failed",
			slog.String("venue", ref.Venue),
			slog.String("order_id", ref.ID),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		return domain.OrderReport{}, false
	}
	rep, err := v.OrderStatus(ctx, ref)
	if err != nil || !rep.Filled() {
		return domain.OrderReport{}, false
	}
	r.log().WarnContext(ctx, "order filled during cancel",
		slog.String("venue", ref.Venue),
		slog.String("order_id", ref.ID),
		slog.String("side", string(ref.Side)),
	)
	return rep, true
}

func (r *tradeRun) settle(buyVenue, sellVenue domain.Venue) (domain.Trade, error) {
	t := &r.trade
	c := r.c
	ctx := context.WithoutCancel(r.ctx)

	r.applySettlement(settlement(
		t.ActualBuyPrice, t.ActualSellPrice, t.Size,
		c.feePct(ctx, buyVenue, t.Instrument),
		c.feePct(ctx, sellVenue, t.Instrument),
	))
	r.ctx = ctx
	r.transition(domain.TradeSettled)
	c.risk.RecordTrade(*t)

	r.log().InfoContext(ctx, "trade settled",
		slog.String("buy_venue", t.BuyVenue),
		slog.String("sell_venue", t.SellVenue),
		slog.Float64("size", t.Size),
		slog.Float64("buy_price", t.ActualBuyPrice),
		slog.Float64("sell_price", t.ActualSellPrice),
		slog.Float64("fees", t.Fees),
		slog.Float64("net_profit", t.NetProfit),
		slog.Duration("duration", t.Duration()),
	)
	title, msg := notify.TradeCompleted(*t)
	c.notify(ctx, domain.EventTradeSettled, title, msg)
	c.finish(*t)
	return cloneTrade(*t), nil
}

// fail ends a trade that took no position.
func (r *tradeRun) fail(cause error) (domain.Trade, error) {
	t := &r.trade
	c := r.c
	r.ctx = context.WithoutCancel(r.ctx)

	t.FailureReason = cause.Error()
	r.transition(domain.TradeFailed)
	c.risk.Release(t.ID)

	r.log().WarnContext(r.ctx, "trade failed", slog.String("error", cause.Error()))
	title, msg := notify.TradeCompleted(*t)
	c.notify(r.ctx, domain.EventTradeFailed, title, msg)
	c.finish(*t)
	return cloneTrade(*t), cause
}

func asPlacementError(err error, venue string, side domain.OrderSide) error {
	var pe *domain.OrderPlacementError
	if errors.As(err, &pe) {
		return pe
	}
	return &domain.OrderPlacementError{Venue: venue, Side: side, Err: err}
}

func asTimeoutError(err error, ref domain.OrderRef, deadline time.Duration) error {
	var te *domain.LegFillTimeoutError
	if errors.As(err, &te) {
		return te
	}
	return &domain.LegFillTimeoutError{Venue: ref.Venue, OrderID: ref.ID, Side: ref.Side, Deadline: deadline, Err: err}
}

func fillPrice(rep domain.OrderReport, fallback float64) float64 {
	if rep.FilledPrice > 0 {
		return rep.FilledPrice
	}
	return fallback
}
