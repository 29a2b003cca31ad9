package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Recorder is the persistence collaborator of the engine. Append calls are
// fire-and-forget from the engine's point of view; QueryRecentTrades feeds the
// advisory consecutive-loss check.
type Recorder interface {
	AppendQuote(ctx context.Context, q Quote) error
	AppendOpportunity(ctx context.Context, opp Opportunity) error
	AppendTrade(ctx context.Context, t Trade) error
	AppendPerformance(ctx context.Context, stats PerformanceStats, at time.Time) error
	// QueryRecentTrades returns up to limit terminal trades, newest first.
	QueryRecentTrades(ctx context.Context, limit int) ([]Trade, error)
}

// TradeHistory is the read side used by the risk gate's advisory check.
type TradeHistory interface {
	QueryRecentTrades(ctx context.Context, limit int) ([]Trade, error)
}

// TradeLister pages through stored trades for the status API.
type TradeLister interface {
	ListTrades(ctx context.Context, opts ListOpts) ([]Trade, error)
}

// AuditLogger records operational events such as archive runs.
type AuditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
