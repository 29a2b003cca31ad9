package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// AppName prefixes lifecycle titles.
const AppName = "ARBITRAGE ENGINE"

// TradeCompleted formats a terminal trade.
func TradeCompleted(t domain.Trade) (title, body string) {
	icon := "✅"
	if !t.Succeeded() {
		icon = "❌"
	}
	title = icon + " ARBITRAGE TRADE COMPLETED"
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", t.Instrument)
	fmt.Fprintf(&b, "Buy Exchange: %s\n", t.BuyVenue)
	fmt.Fprintf(&b, "Sell Exchange: %s\n", t.SellVenue)
	fmt.Fprintf(&b, "Profit: $%.2f\n", t.NetProfit)
	fmt.Fprintf(&b, "Profit %%: %.2f%%\n", t.ProfitPct())
	if t.FailureReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", t.FailureReason)
	}
	fmt.Fprintf(&b, "Trade ID: %s", t.ID)
	return title, b.String()
}

// Opportunity formats a detected opportunity.
func Opportunity(o domain.Opportunity) (title, body string) {
	title = "🔍 NEW ARBITRAGE OPPORTUNITY"
	body = fmt.Sprintf("Symbol: %s\nBuy Exchange: %s\nSell Exchange: %s\nBuy Price: $%.4f\nSell Price: $%.4f\nProfit %%: %.2f%%\nVolume: %.2f",
		o.Instrument, o.BuyVenue, o.SellVenue, o.BuyPrice, o.SellPrice, o.SpreadPct, o.EstVolume)
	return title, body
}

// Error formats an operational error with its context.
func Error(err error, context string) (title, body string) {
	return "🚨 ERROR: " + err.Error(), "Context: " + context
}

// DailySummary formats the performance summary.
func DailySummary(s domain.PerformanceStats, activeTrades int) (title, body string) {
	title = "📊 DAILY PERFORMANCE SUMMARY"
	body = fmt.Sprintf("Total Trades: %d\nSuccessful: %d\nFailed: %d\nWin Rate: %.1f%%\nTotal Profit: $%.2f\nTotal Loss: $%.2f\nNet Profit: $%.2f\nAverage Profit: $%.2f\nActive Trades: %d",
		s.TotalTrades, s.SuccessfulTrades, s.FailedTrades, s.WinRate,
		s.TotalProfit, s.TotalLoss, s.NetProfit, s.AverageProfit, activeTrades)
	return title, body
}

// Startup formats the start notification.
func Startup(instruments, venues int) (title, body string) {
	return "🚀 " + AppName + " STARTED",
		fmt.Sprintf("Monitoring %d trading pairs\nConnected to %d exchanges", instruments, venues)
}

// Shutdown formats the stop notification with final statistics.
func Shutdown(s domain.PerformanceStats) (title, body string) {
	return "🛑 " + AppName + " STOPPED",
		fmt.Sprintf("Final Statistics:\nTotal Trades: %d\nNet Profit: $%.2f\nWin Rate: %.1f%%",
			s.TotalTrades, s.NetProfit, s.WinRate)
}

// RiskAlert formats a risk limit breach.
func RiskAlert(m domain.RiskMetrics, reason domain.RejectReason) (title, body string) {
	title = "⚠️ RISK ALERT"
	body = fmt.Sprintf("Reason: %s\nDaily Loss: $%.2f\nMax Drawdown: %.2f%%\nActive Trades: %d\nCurrent Balance: $%.2f",
		reason, m.DailyLoss, m.MaxDrawdown*100, m.ActiveTrades, m.CurrentBalance)
	return title, body
}

// NakedPosition formats the escalation for unhedged inventory.
func NakedPosition(e *domain.NakedPositionError) (title, body string) {
	title = "🚨 NAKED POSITION"
	state := "INVENTORY STILL OPEN, manual action required"
	if e.Protected {
		state = fmt.Sprintf("Flattened by protective sell at $%.4f", e.ProtectivePrice)
	}
	body = fmt.Sprintf("Trade ID: %s\nSymbol: %s\nVenue: %s\nSize: %.2f\nBuy Price: $%.4f\nStatus: %s\nCause: %v",
		e.TradeID, e.Instrument, e.Venue, e.Size, e.BuyPrice, state, e.Cause)
	return title, body
}
