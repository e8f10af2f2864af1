package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/market"
	"tradeloop/internal/risk"
	"tradeloop/internal/scheduler"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// Binance futures error codes that mean the account cannot fund the order.
var insufficientCodes = map[int64]bool{
	-2018: true, // balance insufficient
	-2019: true, // margin insufficient
}

// Gateway trades USD-M futures through the go-binance SDK.
type Gateway struct {
	cfg    Config
	client *futures.Client
}

var _ exchange.Gateway = (*Gateway)(nil)

func New(cfg Config) (*Gateway, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.SecretKey)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Gateway{cfg: final, client: client}, nil
}

func (g *Gateway) Name() string { return "binance" }

func (g *Gateway) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = exchangeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		return nil, fmt.Errorf("timeframe is required")
	}
	// One extra kline covers the in-progress bar dropped below.
	kls, err := g.client.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit + 1).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Bar{
			Time:   time.UnixMilli(kl.OpenTime).UTC(),
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
			Trades: kl.TradeNum,
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(timeframe); ok {
		out = scheduler.DropUnclosedBar(out, dur)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (g *Gateway) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	if !g.cfg.HasCredentials() {
		return nil, fmt.Errorf("binance credentials are not configured")
	}
	risks, err := g.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("position risk: %w", err)
	}
	out := make([]exchange.Position, 0, len(risks))
	for _, pr := range risks {
		if pr == nil {
			continue
		}
		amt := parseFloat(pr.PositionAmt)
		if amt == 0 {
			continue
		}
		side := exchange.PositionLong
		if amt < 0 {
			side = exchange.PositionShort
		}
		entry := parseFloat(pr.EntryPrice)
		mark := parseFloat(pr.MarkPrice)
		out = append(out, exchange.Position{
			Symbol:           pr.Symbol,
			Side:             side,
			Quantity:         math.Abs(amt),
			EntryPrice:       entry,
			CurrentPrice:     mark,
			UnrealizedPnL:    parseFloat(pr.UnRealizedProfit),
			UnrealizedPnLPct: risk.PnLPct(side, entry, mark),
		})
	}
	return out, nil
}

func (g *Gateway) GetAccountEquity(ctx context.Context) (float64, error) {
	if !g.cfg.HasCredentials() {
		return 0, fmt.Errorf("binance credentials are not configured")
	}
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("account: %w", err)
	}
	equity, err := strconv.ParseFloat(strings.TrimSpace(acct.TotalMarginBalance), 64)
	if err != nil {
		return 0, fmt.Errorf("parse margin balance %q: %w", acct.TotalMarginBalance, err)
	}
	return equity, nil
}

// PlaceMarketOrder ignores ExtendedHours: futures trade around the clock.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	symbol := exchangeSymbol(req.Symbol)
	if !g.cfg.HasCredentials() {
		return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrRejected, symbol, errors.New("credentials are not configured"))
	}
	if req.Quantity <= 0 {
		return exchange.OrderAck{}, exchange.NewOrderError(exchange.OrderErrRejected, symbol, fmt.Errorf("invalid quantity %v", req.Quantity))
	}
	side := futures.SideTypeBuy
	if req.Side == market.SideSell {
		side = futures.SideTypeSell
	}
	svc := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return exchange.OrderAck{}, classifyOrderError(symbol, err)
	}
	return exchange.OrderAck{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Status:      string(resp.Status),
		FilledPrice: parseFloat(resp.AvgPrice),
		AcceptedAt:  time.Now().UTC(),
	}, nil
}

func classifyOrderError(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if insufficientCodes[apiErr.Code] {
			return exchange.NewOrderError(exchange.OrderErrInsufficientFunds, symbol, err)
		}
		return exchange.NewOrderError(exchange.OrderErrRejected, symbol, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return exchange.NewOrderError(exchange.OrderErrNetwork, symbol, err)
	}
	return exchange.NewOrderError(exchange.OrderErrUnknown, symbol, err)
}

// exchangeSymbol strips separators: "BTC/USDT" becomes "BTCUSDT".
func exchangeSymbol(symbol string) string {
	return market.NormalizeSymbol(symbol)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
