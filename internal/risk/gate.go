// Package risk implements admission control for arbitrage opportunities and
// owns the mutable risk book (daily loss, active trades, drawdown).
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config holds the gate's limits. Percentages are in percent (0.1 = 0.1%)
// unless the field says fraction.
type Config struct {
	MaxDailyLoss        float64
	MaxConcurrentTrades int
	// DrawdownLimit is a fraction of the peak balance.
	DrawdownLimit   float64
	MinProfitPct    float64
	MaxSpreadPct    float64
	MaxPositionSize float64
	// RiskPerTrade and StopLoss are fractions.
	RiskPerTrade   float64
	StopLoss       float64
	InitialBalance float64

	// AssumedLossPct is the loss assumed by sizing and risk/reward.
	AssumedLossPct       float64
	MinRiskReward        float64
	ConsecutiveLossLimit int
	RecentTradeWindow    int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxDailyLoss:         100,
		MaxConcurrentTrades:  5,
		DrawdownLimit:        0.10,
		MinProfitPct:         0.1,
		MaxSpreadPct:         5,
		MaxPositionSize:      1000,
		RiskPerTrade:         0.02,
		StopLoss:             0.02,
		InitialBalance:       10000,
		AssumedLossPct:       2,
		MinRiskReward:        1.5,
		ConsecutiveLossLimit: 3,
		RecentTradeWindow:    10,
	}
}

// maxBalanceFraction caps a position at this share of the available balance.
const maxBalanceFraction = 0.8

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces the wall clock used for daily rollover.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLocation sets the time zone whose calendar date drives the daily reset.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) { g.loc = loc }
}

// WithHistory wires the advisory consecutive-loss check to a trade history.
// Without it the check sees no trades and never rejects.
func WithHistory(h domain.TradeHistory) Option {
	return func(g *Gate) { g.history = h }
}

// Gate is the single owner of the risk book. Every read and every
// check-and-mutate sequence runs under mu.
type Gate struct {
	cfg     Config
	history domain.TradeHistory
	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger

	mu    sync.Mutex
	state domain.RiskState
}

// NewGate creates a gate with an empty risk book seeded from the initial
// balance.
func NewGate(cfg Config, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		cfg:    cfg,
		now:    time.Now,
		loc:    time.Local,
		logger: logger.With(slog.String("component", "risk_gate")),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.state = domain.RiskState{
		ActiveTradeIDs: make(map[string]struct{}),
		PeakBalance:    cfg.InitialBalance,
		CurrentBalance: cfg.InitialBalance,
		LastResetDate:  g.today(),
	}
	return g
}

// CanExecute reports whether the opportunity passes every admission check.
func (g *Gate) CanExecute(opp domain.Opportunity) bool {
	return g.Evaluate(opp).Allowed
}

// Evaluate runs the ordered admission checks without registering anything.
func (g *Gate) Evaluate(opp domain.Opportunity) domain.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	return g.checkLocked(opp)
}

// TryAdmit runs the admission checks and, if they pass, registers tradeID as
// active in the same critical section.
func (g *Gate) TryAdmit(opp domain.Opportunity, tradeID string) domain.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()

	if _, dup := g.state.ActiveTradeIDs[tradeID]; dup {
		return domain.Reject(domain.RejectDuplicate, tradeID)
	}
	d := g.checkLocked(opp)
	if !d.Allowed {
		return d
	}
	g.state.ActiveTradeIDs[tradeID] = struct{}{}
	return d
}

func (g *Gate) checkLocked(opp domain.Opportunity) domain.Decision {
	s := &g.state
	switch {
	case s.DailyLoss >= g.cfg.MaxDailyLoss:
		return domain.Reject(domain.RejectDailyLoss,
			fmt.Sprintf("daily loss %.2f >= %.2f", s.DailyLoss, g.cfg.MaxDailyLoss))
	case len(s.ActiveTradeIDs) >= g.cfg.MaxConcurrentTrades:
		return domain.Reject(domain.RejectConcurrency,
			fmt.Sprintf("%d/%d trades active", len(s.ActiveTradeIDs), g.cfg.MaxConcurrentTrades))
	case s.MaxDrawdown >= g.cfg.DrawdownLimit:
		return domain.Reject(domain.RejectDrawdown,
			fmt.Sprintf("drawdown %.4f >= %.4f", s.MaxDrawdown, g.cfg.DrawdownLimit))
	case opp.SpreadPct < g.cfg.MinProfitPct:
		return domain.Reject(domain.RejectProfitFloor,
			fmt.Sprintf("spread %.4f%% < %.4f%%", opp.SpreadPct, g.cfg.MinProfitPct))
	case opp.SpreadPct > g.cfg.MaxSpreadPct:
		return domain.Reject(domain.RejectSanityCeiling,
			fmt.Sprintf("spread %.4f%% > %.4f%%", opp.SpreadPct, g.cfg.MaxSpreadPct))
	}
	return domain.Allow()
}

// Advise is the secondary gate: risk/reward against the assumed loss and a
// run of consecutive losses among the most recent trades.
func (g *Gate) Advise(ctx context.Context, opp domain.Opportunity) domain.Decision {
	if g.cfg.AssumedLossPct > 0 {
		rr := opp.SpreadPct / g.cfg.AssumedLossPct
		if rr < g.cfg.MinRiskReward {
			return domain.Reject(domain.RejectRiskReward,
				fmt.Sprintf("risk/reward %.2f < %.2f", rr, g.cfg.MinRiskReward))
		}
	}

	if g.history == nil || g.cfg.ConsecutiveLossLimit <= 0 {
		return domain.Allow()
	}
	recent, err := g.history.QueryRecentTrades(ctx, g.cfg.RecentTradeWindow)
	if err != nil {
		g.logger.WarnContext(ctx, "recent trades unavailable, skipping loss streak check",
			slog.String("error", err.Error()),
		)
		return domain.Allow()
	}
	if lossStreak(recent, g.cfg.ConsecutiveLossLimit) {
		return domain.Reject(domain.RejectConsecutiveLosses,
			fmt.Sprintf("last %d trades lost", g.cfg.ConsecutiveLossLimit))
	}
	return domain.Allow()
}

// lossStreak reports whether the newest n trades all lost money. trades is
// ordered newest first.
func lossStreak(trades []domain.Trade, n int) bool {
	if len(trades) < n {
		return false
	}
	for _, t := range trades[:n] {
		if t.NetProfit >= 0 {
			return false
		}
	}
	return true
}

// PositionSize returns the order size for an available balance:
// min(balance*riskPerTrade/assumedLoss, maxPositionSize, 0.8*balance),
// rounded down to 2 decimals so the bounds still hold after rounding.
func (g *Gate) PositionSize(balance float64) float64 {
	if balance <= 0 {
		return 0
	}
	b := decimal.NewFromFloat(balance)
	size := b.Mul(decimal.NewFromFloat(g.cfg.RiskPerTrade))
	if g.cfg.AssumedLossPct > 0 {
		size = size.Div(decimal.NewFromFloat(g.cfg.AssumedLossPct / 100))
	}
	size = decimal.Min(size,
		decimal.NewFromFloat(g.cfg.MaxPositionSize),
		b.Mul(decimal.NewFromFloat(maxBalanceFraction)),
	)
	if size.IsNegative() {
		return 0
	}
	return size.RoundFloor(2).InexactFloat64()
}

// SizingRecommendation summarizes sizing for a balance.
func (g *Gate) SizingRecommendation(balance float64) domain.SizingRecommendation {
	size := g.PositionSize(balance)
	return domain.SizingRecommendation{
		RecommendedSize: size,
		MaxSize:         g.cfg.MaxPositionSize,
		RiskAmount:      decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(g.cfg.AssumedLossPct / 100)).Round(2).InexactFloat64(),
		RiskPct:         g.cfg.RiskPerTrade * 100,
	}
}

// StopLossBreached reports whether a trade lost more than the stop loss.
func (g *Gate) StopLossBreached(t domain.Trade) bool {
	return t.ProfitPct() < -g.cfg.StopLoss*100
}

// RecordTrade folds a terminal trade into the risk book and releases its id.
func (g *Gate) RecordTrade(t domain.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()

	s := &g.state
	delete(s.ActiveTradeIDs, t.ID)
	s.DailyTradeCount++

	switch {
	case t.NetProfit > 0:
		s.CurrentBalance += t.NetProfit
		if s.CurrentBalance > s.PeakBalance {
			s.PeakBalance = s.CurrentBalance
		}
	case t.NetProfit < 0:
		loss := -t.NetProfit
		s.DailyLoss += loss
		s.CurrentBalance -= loss
		if s.PeakBalance > 0 {
			dd := (s.PeakBalance - s.CurrentBalance) / s.PeakBalance
			if dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}
}

// UpdateBalance sets the current balance from an outside source, such as a
// venue reconciliation. The peak only moves up.
func (g *Gate) UpdateBalance(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &g.state
	s.CurrentBalance = balance
	if balance > s.PeakBalance {
		s.PeakBalance = balance
	}
	if s.PeakBalance > 0 {
		if dd := (s.PeakBalance - balance) / s.PeakBalance; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
}

// Release drops an active trade id without any profit or loss.
func (g *Gate) Release(tradeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.state.ActiveTradeIDs, tradeID)
}

// Metrics returns a copy of the risk book.
func (g *Gate) Metrics() domain.RiskMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	s := g.state
	return domain.RiskMetrics{
		DailyLoss:       s.DailyLoss,
		DailyTradeCount: s.DailyTradeCount,
		ActiveTrades:    len(s.ActiveTradeIDs),
		PeakBalance:     s.PeakBalance,
		CurrentBalance:  s.CurrentBalance,
		MaxDrawdown:     s.MaxDrawdown,
		LastResetDate:   s.LastResetDate,
	}
}

// IsActive reports whether tradeID is registered.
func (g *Gate) IsActive(tradeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.state.ActiveTradeIDs[tradeID]
	return ok
}

func (g *Gate) today() time.Time {
	y, m, d := g.now().In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.loc)
}

// maybeResetLocked zeroes the daily counters when the calendar date differs
// from the last reset date.
func (g *Gate) maybeResetLocked() {
	today := g.today()
	if today.Equal(g.state.LastResetDate) {
		return
	}
	g.logger.Info("daily risk counters reset",
		slog.Float64("daily_loss", g.state.DailyLoss),
		slog.Int("daily_trades", g.state.DailyTradeCount),
		slog.String("date", today.Format(time.DateOnly)),
	)
	g.state.DailyLoss = 0
	g.state.DailyTradeCount = 0
	g.state.LastResetDate = today
}
