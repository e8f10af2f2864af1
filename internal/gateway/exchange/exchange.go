package exchange

import (
	"context"

	"tradeloop/internal/market"
)

// Gateway is the broker surface consumed by the engine. Every call may block
// on the network and must honor ctx.
type Gateway interface {
	// Name returns the backend identifier (e.g. "binance", "paper").
	Name() string

	GetPositions(ctx context.Context) ([]Position, error)
	GetAccountEquity(ctx context.Context) (float64, error)
	// GetBars returns up to limit closed bars, oldest first.
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}
