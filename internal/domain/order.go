package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the venue-side order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderRequest asks a venue to place an order. A zero Price means a market
// order.
type OrderRequest struct {
	Instrument string
	Side       OrderSide
	Size       float64
	Price      float64
	ClientID   string
}

// IsMarket reports whether the request is a market order.
func (r OrderRequest) IsMarket() bool {
	return r.Price == 0
}

// OrderRef identifies an order on the venue that accepted it.
type OrderRef struct {
	Venue      string    `json:"venue"`
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Side       OrderSide `json:"side"`
	Size       float64   `json:"size"`
	PlacedAt   time.Time `json:"placed_at"`
}

// IsZero reports whether the reference is unset.
func (r OrderRef) IsZero() bool {
	return r.ID == ""
}

// OrderReport is a venue's view of an order at a point in time.
type OrderReport struct {
	Status      OrderStatus
	FilledPrice float64
	FilledSize  float64
}

// Filled reports whether the order is completely filled.
func (r OrderReport) Filled() bool {
	return r.Status == OrderStatusFilled
}

// FeeSchedule holds a venue's trading fees for one instrument, in percent of
// notional (0.1 means 0.1%).
type FeeSchedule struct {
	MakerFeePct float64
	TakerFeePct float64
}
