package domain

import "context"

// EventKind classifies a notification.
type EventKind string

const (
	EventOpportunity   EventKind = "opportunity"
	EventTradeSettled  EventKind = "trade_settled"
	EventTradeFailed   EventKind = "trade_failed"
	EventNakedPosition EventKind = "naked_position"
	EventRiskAlert     EventKind = "risk_alert"
	EventDailySummary  EventKind = "daily_summary"
	EventLifecycle     EventKind = "lifecycle"
	EventError         EventKind = "error"
)

// Notifier delivers best-effort alerts. Notify must not block the caller.
// Escalate is the high-severity path used for naked positions and ignores
// event filters.
type Notifier interface {
	Notify(ctx context.Context, kind EventKind, title, message string)
	Escalate(ctx context.Context, title, message string)
}
