package executor

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// pnl is the settlement of a round trip.
type pnl struct {
	gross float64
	fees  float64
	net   float64
}

// settlement computes gross = (sell-buy)*size, a fee on each leg's notional
// and net = gross - fees. Fee rates are percentages.
func settlement(buyPrice, sellPrice, size, buyFeePct, sellFeePct float64) pnl {
	buy := decimal.NewFromFloat(buyPrice)
	sell := decimal.NewFromFloat(sellPrice)
	qty := decimal.NewFromFloat(size)

	gross := sell.Sub(buy).Mul(qty)
	buyFee := buy.Mul(qty).Mul(decimal.NewFromFloat(buyFeePct)).Div(hundred)
	sellFee := sell.Mul(qty).Mul(decimal.NewFromFloat(sellFeePct)).Div(hundred)
	fees := buyFee.Add(sellFee)

	return pnl{
		gross: gross.Round(8).InexactFloat64(),
		fees:  fees.Round(8).InexactFloat64(),
		net:   gross.Sub(fees).Round(8).InexactFloat64(),
	}
}

// feePct returns the maker fee of v for instrument, or the configured default
// when the schedule cannot be read.
func (c *Coordinator) feePct(ctx context.Context, v domain.Venue, instrument string) float64 {
	fs, err := v.FeeSchedule(ctx, instrument)
	if err != nil {
		c.logger.WarnContext(ctx, "fee schedule unavailable, using default",
			slog.String("venue", v.Name()),
			slog.String("instrument", instrument),
			slog.Float64("default_fee_pct", c.cfg.DefaultFeePct),
			slog.String("error", err.Error()),
		)
		return c.cfg.DefaultFeePct
	}
	return fs.MakerFeePct
}

func (t *tradeRun) applySettlement(p pnl) {
	t.trade.GrossProfit = p.gross
	t.trade.Fees = p.fees
	t.trade.NetProfit = p.net
}
