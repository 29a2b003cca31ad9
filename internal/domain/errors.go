package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrOrderRejected     = errors.New("order rejected by venue")
	ErrOrderCancelled    = errors.New("order cancelled")
	ErrLockHeld          = errors.New("lock already held")
	ErrUnknownVenue      = errors.New("unknown venue")
	ErrInvalidTransition = errors.New("invalid trade state transition")
)

// QuoteUnavailableError reports that a venue produced no usable quote this
// cycle. It is never fatal; the venue is skipped for the cycle.
type QuoteUnavailableError struct {
	Venue      string
	Instrument string
	Err        error
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("quote unavailable: %s %s: %v", e.Venue, e.Instrument, e.Err)
}

func (e *QuoteUnavailableError) Unwrap() error { return e.Err }

// OrderPlacementError reports that a venue refused or failed to accept an
// order. No position was taken by the failed order.
type OrderPlacementError struct {
	Venue string
	Side  OrderSide
	Err   error
}

func (e *OrderPlacementError) Error() string {
	return fmt.Sprintf("order placement failed: %s %s: %v", e.Venue, e.Side, e.Err)
}

func (e *OrderPlacementError) Unwrap() error { return e.Err }

// LegFillTimeoutError reports that an order did not reach the filled state
// before its deadline.
type LegFillTimeoutError struct {
	Venue    string
	OrderID  string
	Side     OrderSide
	Deadline time.Duration
	Err      error
}

func (e *LegFillTimeoutError) Error() string {
	msg := fmt.Sprintf("%s leg %s on %s not filled within %s", e.Side, e.OrderID, e.Venue, e.Deadline)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LegFillTimeoutError) Unwrap() error { return e.Err }

// NakedPositionError is the highest severity outcome of a trade: the buy leg
// filled but the sell leg could not be placed or filled, leaving unhedged
// inventory on the buy venue.
type NakedPositionError struct {
	TradeID    string
	Instrument string
	Venue      string
	Size       float64
	BuyPrice   float64
	// Protected is true when the protective market sell on the buy venue
	// filled and the inventory is flat again.
	Protected       bool
	ProtectivePrice float64
	Cause           error
}

func (e *NakedPositionError) Error() string {
	state := "inventory still open"
	if e.Protected {
		state = fmt.Sprintf("flattened at %.6f", e.ProtectivePrice)
	}
	return fmt.Sprintf("naked position: trade %s holds %.2f %s on %s bought at %.6f (%s): %v",
		e.TradeID, e.Size, e.Instrument, e.Venue, e.BuyPrice, state, e.Cause)
}

func (e *NakedPositionError) Unwrap() error { return e.Cause }

// ConfigError collects configuration problems found at startup. It is always
// fatal.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	msg := "config validation failed:"
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}
