// Package stats aggregates terminal trades into running performance figures.
package stats

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Tracker is a single-writer, multi-reader performance aggregate. Snapshot
// is safe to call while the executor records trades.
type Tracker struct {
	mu     sync.RWMutex
	total  int
	wins   int
	losses int
	naked  int
	profit decimal.Decimal
	loss   decimal.Decimal
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record folds a terminal trade into the totals. A settled trade with
// positive net profit is a success; anything else is a failure and any
// realized loss is added to the loss total.
func (t *Tracker) Record(tr domain.Trade) {
	if !tr.State.IsTerminal() {
		return
	}
	net := decimal.NewFromFloat(tr.NetProfit)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
	if tr.NakedExposure {
		t.naked++
	}
	if tr.Succeeded() {
		t.wins++
		t.profit = t.profit.Add(net)
		return
	}
	t.losses++
	if net.IsNegative() {
		t.loss = t.loss.Add(net.Abs())
	}
}

// Snapshot derives the current statistics.
func (t *Tracker) Snapshot() domain.PerformanceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := domain.PerformanceStats{
		TotalTrades:      t.total,
		SuccessfulTrades: t.wins,
		FailedTrades:     t.losses,
		TotalProfit:      t.profit.InexactFloat64(),
		TotalLoss:        t.loss.InexactFloat64(),
		NetProfit:        t.profit.Sub(t.loss).InexactFloat64(),
		NakedExposures:   t.naked,
	}
	if t.total > 0 {
		s.WinRate = float64(t.wins) / float64(t.total) * 100
	}
	if t.wins > 0 {
		s.AverageProfit = t.profit.Div(decimal.NewFromInt(int64(t.wins))).InexactFloat64()
	}
	return s
}

// Reset clears every total.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total, t.wins, t.losses, t.naked = 0, 0, 0, 0
	t.profit, t.loss = decimal.Zero, decimal.Zero
}

// Recompute builds statistics from a trade history.
func Recompute(trades []domain.Trade) domain.PerformanceStats {
	t := NewTracker()
	for _, tr := range trades {
		t.Record(tr)
	}
	return t.Snapshot()
}
