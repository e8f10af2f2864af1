package gateway

import (
	"fmt"

	"tradeloop/internal/config"
	"tradeloop/internal/gateway/binance"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/gateway/paper"
)

// NewFromConfig builds the broker selected by gateway.mode. Paper mode can
// read real bars from Binance while keeping its own simulated account.
func NewFromConfig(cfg *config.Config) (exchange.Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	switch cfg.Gateway.Mode {
	case "binance":
		gw, err := binance.New(cfg.Gateway.Binance.GatewayConfig())
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "paper":
		src, err := newPaperSource(cfg)
		if err != nil {
			return nil, err
		}
		gw, err := paper.New(src, cfg.PaperConfig())
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported gateway mode: %s", cfg.Gateway.Mode)
	}
}

func newPaperSource(cfg *config.Config) (paper.BarSource, error) {
	switch cfg.Gateway.Paper.DataSource {
	case "binance":
		gw, err := binance.New(cfg.Gateway.Binance.GatewayConfig())
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "", "synthetic":
		return paper.NewSyntheticSource(cfg.Gateway.Paper.Seed), nil
	default:
		return nil, fmt.Errorf("unsupported paper data source: %s", cfg.Gateway.Paper.DataSource)
	}
}
