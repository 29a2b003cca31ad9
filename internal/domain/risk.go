package domain

import "time"

// RiskState is the mutable risk book owned by the risk gate.
type RiskState struct {
	DailyLoss       float64
	DailyTradeCount int
	ActiveTradeIDs  map[string]struct{}
	PeakBalance     float64
	CurrentBalance  float64
	// MaxDrawdown is a fraction of the peak balance (0.1 = 10%).
	MaxDrawdown   float64
	LastResetDate time.Time
}

// RiskMetrics is a read-only copy of the risk book.
type RiskMetrics struct {
	DailyLoss       float64   `json:"daily_loss"`
	DailyTradeCount int       `json:"daily_trade_count"`
	ActiveTrades    int       `json:"active_trades"`
	PeakBalance     float64   `json:"peak_balance"`
	CurrentBalance  float64   `json:"current_balance"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	LastResetDate   time.Time `json:"last_reset_date"`
}

// RejectReason names the check that rejected an opportunity.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectDailyLoss         RejectReason = "daily_loss_limit"
	RejectConcurrency       RejectReason = "max_concurrent_trades"
	RejectDrawdown          RejectReason = "drawdown_limit"
	RejectProfitFloor       RejectReason = "below_min_profit"
	RejectSanityCeiling     RejectReason = "implausible_spread"
	RejectRiskReward        RejectReason = "risk_reward_too_low"
	RejectConsecutiveLosses RejectReason = "consecutive_losses"
	RejectDuplicate         RejectReason = "duplicate_trade_id"
	RejectSize              RejectReason = "position_size_zero"
)

// Decision is the outcome of a risk check. A rejection is not an error: the
// opportunity is dropped and no trade is created.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  RejectReason `json:"reason,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

// Allow is the passing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Reject builds a failing decision.
func Reject(reason RejectReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// SizingRecommendation is the advisory sizing summary for a balance.
type SizingRecommendation struct {
	RecommendedSize float64 `json:"recommended_size"`
	MaxSize         float64 `json:"max_size"`
	RiskAmount      float64 `json:"risk_amount"`
	RiskPct         float64 `json:"risk_pct"`
}
