package domain

import (
	"fmt"
	"time"
)

// TradeState is the two-leg execution state of a trade.
type TradeState string

const (
	TradeInit       TradeState = "INIT"
	TradeBuyPlaced  TradeState = "BUY_PLACED"
	TradeBuyFilled  TradeState = "BUY_FILLED"
	TradeSellPlaced TradeState = "SELL_PLACED"
	TradeSellFilled TradeState = "SELL_FILLED"
	TradeSettled    TradeState = "SETTLED"
	TradeFailed     TradeState = "FAILED"
	TradeCancelled  TradeState = "CANCELLED"
)

// forward lists the single legal forward successor of each working state.
var forward = map[TradeState]TradeState{
	TradeInit:       TradeBuyPlaced,
	TradeBuyPlaced:  TradeBuyFilled,
	TradeBuyFilled:  TradeSellPlaced,
	TradeSellPlaced: TradeSellFilled,
	TradeSellFilled: TradeSettled,
}

// IsTerminal reports whether no further transition is possible.
func (s TradeState) IsTerminal() bool {
	return s == TradeSettled || s == TradeFailed || s == TradeCancelled
}

// CanTransition reports whether moving from s to next is legal.
func (s TradeState) CanTransition(next TradeState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == TradeFailed || next == TradeCancelled {
		return true
	}
	return forward[s] == next
}

// StateChange records one transition of a trade.
type StateChange struct {
	From TradeState `json:"from"`
	To   TradeState `json:"to"`
	At   time.Time  `json:"at"`
}

// Trade is one two-leg arbitrage execution. The execution coordinator owns a
// trade until it reaches a terminal state; afterwards it is passed by value.
type Trade struct {
	ID              string        `json:"id"`
	OpportunityID   string        `json:"opportunity_id"`
	Instrument      string        `json:"instrument"`
	BuyVenue        string        `json:"buy_venue"`
	SellVenue       string        `json:"sell_venue"`
	Size            float64       `json:"size"`
	ExpectedBuy     float64       `json:"expected_buy"`
	ExpectedSell    float64       `json:"expected_sell"`
	State           TradeState    `json:"state"`
	BuyOrder        OrderRef      `json:"buy_order"`
	SellOrder       OrderRef      `json:"sell_order"`
	ActualBuyPrice  float64       `json:"actual_buy_price"`
	ActualSellPrice float64       `json:"actual_sell_price"`
	Fees            float64       `json:"fees"`
	GrossProfit     float64       `json:"gross_profit"`
	NetProfit       float64       `json:"net_profit"`
	NakedExposure   bool          `json:"naked_exposure"`
	ProtectiveOrder OrderRef      `json:"protective_order"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	History         []StateChange `json:"history,omitempty"`
}

// NewTrade creates a trade in the INIT state for the given opportunity.
func NewTrade(id string, opp Opportunity, size float64, now time.Time) Trade {
	return Trade{
		ID:            id,
		OpportunityID: opp.ID,
		Instrument:    opp.Instrument,
		BuyVenue:      opp.BuyVenue,
		SellVenue:     opp.SellVenue,
		Size:          size,
		ExpectedBuy:   opp.BuyPrice,
		ExpectedSell:  opp.SellPrice,
		State:         TradeInit,
		StartedAt:     now,
	}
}

// Transition moves the trade to next, recording the change. Terminal states
// stamp CompletedAt.
func (t *Trade) Transition(next TradeState, at time.Time) error {
	if !t.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, next)
	}
	t.History = append(t.History, StateChange{From: t.State, To: next, At: at})
	t.State = next
	if next.IsTerminal() {
		t.CompletedAt = at
	}
	return nil
}

// Succeeded reports whether the trade settled with positive net profit.
func (t Trade) Succeeded() bool {
	return t.State == TradeSettled && t.NetProfit > 0
}

// ProfitPct returns net profit as a percentage of the buy notional.
func (t Trade) ProfitPct() float64 {
	notional := t.ActualBuyPrice * t.Size
	if notional == 0 {
		return 0
	}
	return t.NetProfit / notional * 100
}

// Duration returns how long the trade took, or zero if it is still open.
func (t Trade) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
