// Package exchange defines the broker abstraction the engine trades through.
// Backends (live futures, paper) implement Gateway without the engine
// knowing which one is wired.
package exchange

import (
	"errors"
	"fmt"
	"time"

	"tradeloop/internal/market"
)

type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// CloseSide is the order side that flattens the position.
func (s PositionSide) CloseSide() market.Side {
	if s == PositionShort {
		return market.SideBuy
	}
	return market.SideSell
}

// Position is a read-only snapshot of one open holding.
type Position struct {
	Symbol       string       `json:"symbol"`
	Side         PositionSide `json:"side"`
	Quantity     float64      `json:"quantity"`    // Always positive
	EntryPrice   float64      `json:"entry_price"` // Average entry price
	CurrentPrice float64      `json:"current_price"`
	// UnrealizedPnLPct is a fraction, -0.025 means -2.5%.
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
}

// OrderRequest places a market order.
type OrderRequest struct {
	Symbol        string      `json:"symbol"`
	Quantity      float64     `json:"quantity"`
	Side          market.Side `json:"side"`
	ExtendedHours bool        `json:"extended_hours"`
	ReduceOnly    bool        `json:"reduce_only"` // Closing orders only
}

// OrderAck is the broker's acceptance. Acceptance does not imply a fill.
type OrderAck struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	FilledPrice float64   `json:"filled_price,omitempty"` // Zero when unknown
	AcceptedAt  time.Time `json:"accepted_at"`
}

type OrderErrorKind string

const (
	OrderErrNetwork           OrderErrorKind = "network"
	OrderErrRejected          OrderErrorKind = "rejected"
	OrderErrInsufficientFunds OrderErrorKind = "insufficient_funds"
	OrderErrUnknown           OrderErrorKind = "unknown"
)

// OrderError is returned by PlaceMarketOrder when the broker did not accept the order.
type OrderError struct {
	Kind   OrderErrorKind
	Symbol string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("order %s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("order %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

func NewOrderError(kind OrderErrorKind, symbol string, err error) *OrderError {
	return &OrderError{Kind: kind, Symbol: symbol, Err: err}
}

// IsOrderError reports whether err is an OrderError and returns it.
func IsOrderError(err error) (*OrderError, bool) {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
