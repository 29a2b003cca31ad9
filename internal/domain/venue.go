package domain

import (
	"context"
	"time"
)

// Venue is the capability every trading venue adapter provides. One adapter
// exists per venue kind; instances are registered by name at startup.
type Venue interface {
	Name() string
	// FetchQuote returns top of book. Failures should be reported as
	// *QuoteUnavailableError.
	FetchQuote(ctx context.Context, instrument string) (Quote, error)
	// PlaceOrder submits an order. Failures should be reported as
	// *OrderPlacementError.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error)
	OrderStatus(ctx context.Context, ref OrderRef) (OrderReport, error)
	CancelOrder(ctx context.Context, ref OrderRef) (bool, error)
	Balance(ctx context.Context, currency string) (float64, error)
	FeeSchedule(ctx context.Context, instrument string) (FeeSchedule, error)
	// AwaitFill polls the order until it is filled, cancelled, or timeout
	// elapses. A timeout yields *LegFillTimeoutError; a cancelled order
	// yields ErrOrderCancelled.
	AwaitFill(ctx context.Context, ref OrderRef, timeout time.Duration) (OrderReport, error)
}

// VenueLookup resolves a venue by name.
type VenueLookup interface {
	Get(name string) (Venue, error)
}
