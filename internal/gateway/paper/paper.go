package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"
	"tradeloop/internal/market"
	"tradeloop/internal/pkg/id"
	"tradeloop/internal/risk"
)

// Extended-hours orders fill this far through the last price, mirroring a
// marketable limit order.
const extendedHoursSlippage = 0.002

type Config struct {
	StartingCash float64
	Timeframe    string
}

type holding struct {
	qty   decimal.Decimal
	entry decimal.Decimal
	last  float64
}

// Gateway simulates a cash account that fills market orders instantly at
// the last close of its bar source.
type Gateway struct {
	src BarSource
	cfg Config

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]*holding
	lastPx   map[string]float64
}

var _ exchange.Gateway = (*Gateway)(nil)

func New(src BarSource, cfg Config) (*Gateway, error) {
	if src == nil {
		return nil, errors.New("paper gateway needs a bar source")
	}
	if cfg.StartingCash <= 0 {
		cfg.StartingCash = 100000
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "5m"
	}
	return &Gateway{
		src:      src,
		cfg:      cfg,
		cash:     decimal.NewFromFloat(cfg.StartingCash),
		holdings: make(map[string]*holding),
		lastPx:   make(map[string]float64),
	}, nil
}

func (g *Gateway) Name() string { return "paper" }

func (g *Gateway) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	bars, err := g.src.GetBars(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		g.mu.Lock()
		g.lastPx[market.NormalizeSymbol(symbol)] = market.Last(bars).Close
		g.mu.Unlock()
	}
	return bars, nil
}

// GetPositions marks every holding to the latest close before reporting.
func (g *Gateway) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	if err := g.markToMarket(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	symbols := make([]string, 0, len(g.holdings))
	for sym := range g.holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	out := make([]exchange.Position, 0, len(symbols))
	for _, sym := range symbols {
		h := g.holdings[sym]
		qty, _ := h.qty.Float64()
		entry, _ := h.entry.Float64()
		pnl, _ := decimal.NewFromFloat(h.last).Sub(h.entry).Mul(h.qty).Float64()
		out = append(out, exchange.Position{
			Symbol:           sym,
			Side:             exchange.PositionLong,
			Quantity:         qty,
			EntryPrice:       entry,
			CurrentPrice:     h.last,
			UnrealizedPnL:    pnl,
			UnrealizedPnLPct: risk.PnLPct(exchange.PositionLong, entry, h.last),
		})
	}
	return out, nil
}

func (g *Gateway) GetAccountEquity(ctx context.Context) (float64, error) {
	if err := g.markToMarket(ctx); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	total := g.cash
	for _, h := range g.holdings {
		total = total.Add(h.qty.Mul(decimal.NewFromFloat(h.last)))
	}
	f, _ := total.Float64()
	return f, nil
}

func (g *Gateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	sym := market.NormalizeSymbol(req.Symbol)
	if req.Quantity <= 0 {
		return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrRejected, sym, fmt.Errorf("invalid quantity %v", req.Quantity))
	}
	price, err := g.price(ctx, sym)
	if err != nil {
		return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrNetwork, sym, err)
	}
	fill := decimal.NewFromFloat(price)
	if req.ExtendedHours {
		slip := decimal.NewFromFloat(extendedHoursSlippage)
		if req.Side == market.SideBuy {
			fill = fill.Mul(decimal.NewFromInt(1).Add(slip))
		} else {
			fill = fill.Mul(decimal.NewFromInt(1).Sub(slip))
		}
	}
	qty := decimal.NewFromFloat(req.Quantity)

	g.mu.Lock()
	defer g.mu.Unlock()
	switch req.Side {
	case market.SideBuy:
		cost := qty.Mul(fill)
		if cost.GreaterThan(g.cash) {
			return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrInsufficientFunds, sym,
				fmt.Errorf("cost %s exceeds cash %s", cost.StringFixed(2), g.cash.StringFixed(2)))
		}
		h := g.holdings[sym]
		if h == nil {
			h = &holding{qty: decimal.Zero, entry: decimal.Zero}
			g.holdings[sym] = h
		}
		newQty := h.qty.Add(qty)
		h.entry = h.entry.Mul(h.qty).Add(cost).Div(newQty)
		h.qty = newQty
		h.last = price
		g.cash = g.cash.Sub(cost)
	case market.SideSell:
		h := g.holdings[sym]
		if h == nil || h.qty.LessThan(qty) {
			return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrRejected, sym, errors.New("paper account does not short"))
		}
		g.cash = g.cash.Add(qty.Mul(fill))
		h.qty = h.qty.Sub(qty)
		h.last = price
		if h.qty.IsZero() {
			delete(g.holdings, sym)
		}
	default:
		return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrRejected, sym, fmt.Errorf("unknown side %q", req.Side))
	}
	filled, _ := fill.Float64()
	logger.Debugf("paper: %s %s x%v @ %.4f", req.Side, sym, req.Quantity, filled)
	return exchange.OrderAck{
		OrderID:     id.New(),
		Status:      "filled",
		FilledPrice: filled,
		AcceptedAt:  time.Now().UTC(),
	}, nil
}

func (g *Gateway) price(ctx context.Context, sym string) (float64, error) {
	g.mu.Lock()
	px, ok := g.lastPx[sym]
	g.mu.Unlock()
	if ok && px > 0 {
		return px, nil
	}
	bars, err := g.GetBars(ctx, sym, g.cfg.Timeframe, 1)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no price for %s", sym)
	}
	return market.Last(bars).Close, nil
}

func (g *Gateway) markToMarket(ctx context.Context) error {
	g.mu.Lock()
	symbols := make([]string, 0, len(g.holdings))
	for sym := range g.holdings {
		symbols = append(symbols, sym)
	}
	g.mu.Unlock()
	for _, sym := range symbols {
		bars, err := g.GetBars(ctx, sym, g.cfg.Timeframe, 1)
		if err != nil {
			return fmt.Errorf("mark %s: %w", sym, err)
		}
		if len(bars) == 0 {
			continue
		}
		g.mu.Lock()
		if h := g.holdings[sym]; h != nil {
			h.last = market.Last(bars).Close
		}
		g.mu.Unlock()
	}
	return nil
}
