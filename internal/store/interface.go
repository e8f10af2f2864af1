package store

import (
	"context"
	"time"
)

// TradeRecord is one acknowledged order. Rows are never updated; new fields
// must be additive.
type TradeRecord struct {
	ID            string         `json:"id"`
	Symbol        string         `json:"symbol"`
	Side          string         `json:"side"`
	Quantity      float64        `json:"quantity"`
	Price         float64        `json:"price"`
	StrategyTag   string         `json:"strategy"`
	OrderID       string         `json:"order_id"`
	Status        string         `json:"status"`
	Reason        string         `json:"reason"`
	TickID        string         `json:"tick_id"`
	ExtendedHours bool           `json:"extended_hours"`
	Meta          map[string]any `json:"meta,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type TradeQuery struct {
	Symbol string
	Since  time.Time
	Limit  int
}

// Ledger is the append-only trade journal.
type Ledger interface {
	// AppendTrade stores rec and returns its id. An empty rec.ID is filled in.
	AppendTrade(ctx context.Context, rec TradeRecord) (string, error)
	// ListTrades returns matching trades, newest first.
	ListTrades(ctx context.Context, q TradeQuery) ([]TradeRecord, error)
	CountTradesSince(ctx context.Context, since time.Time) (int64, error)
	Close() error
}
