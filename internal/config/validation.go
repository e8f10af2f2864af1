package config

import (
	"fmt"
	"strings"

	"tradeloop/internal/market"
	"tradeloop/internal/scheduler"
	"tradeloop/internal/strategy"
)

func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Strategies.validate(); err != nil {
		return err
	}
	if err := c.Gateway.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.Symbols) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	seen := make(map[string]bool, len(t.Symbols))
	for _, sym := range t.Symbols {
		norm := market.NormalizeSymbol(sym)
		if norm == "" {
			return fmt.Errorf("trading.symbols contains an empty entry")
		}
		if seen[norm] {
			return fmt.Errorf("trading.symbols lists %s twice", norm)
		}
		seen[norm] = true
	}
	sum := 0.0
	for name, pct := range t.StrategyAllocations {
		if _, err := strategy.ParseTag(name); err != nil {
			return fmt.Errorf("trading.strategy_allocations: %w", err)
		}
		if pct < 0 {
			return fmt.Errorf("trading.strategy_allocations.%s must be >= 0", name)
		}
		sum += pct
	}
	if sum > 100 {
		return fmt.Errorf("trading.strategy_allocations sum to %.2f, must be <= 100", sum)
	}
	if _, ok := scheduler.ParseIntervalDuration(t.Timeframe); !ok {
		return fmt.Errorf("trading.timeframe %q is not a valid interval", t.Timeframe)
	}
	if t.CheckInterval <= 0 {
		return fmt.Errorf("trading.check_interval must be > 0")
	}
	if t.SizingFactor <= 0 || t.SizingFactor > 1 {
		return fmt.Errorf("trading.sizing_factor must be in (0,1]")
	}
	if t.LotSize <= 0 {
		return fmt.Errorf("trading.lot_size must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxPositionValue <= 0 {
		return fmt.Errorf("risk.max_position_value must be > 0")
	}
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	if r.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be > 0")
	}
	if r.StopLossPct <= 0 || r.StopLossPct >= 1 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0,1)")
	}
	if r.TakeProfitPct <= 0 {
		return fmt.Errorf("risk.take_profit_pct must be > 0")
	}
	return nil
}

func (s *StrategiesConfig) validate() error {
	if s.MACrossover.Fast <= 0 || s.MACrossover.Fast >= s.MACrossover.Slow {
		return fmt.Errorf("strategies.ma_crossover needs 0 < fast < slow, got %d/%d", s.MACrossover.Fast, s.MACrossover.Slow)
	}
	return nil
}

func (g *GatewayConfig) validate() error {
	switch g.Mode {
	case "paper":
		if g.Paper.StartingEquity <= 0 {
			return fmt.Errorf("gateway.paper.starting_equity must be > 0")
		}
		switch g.Paper.DataSource {
		case "synthetic", "binance":
		default:
			return fmt.Errorf("gateway.paper.data_source must be synthetic or binance")
		}
	case "binance":
		if strings.TrimSpace(g.Binance.APIKey) == "" || strings.TrimSpace(g.Binance.SecretKey) == "" {
			return fmt.Errorf("gateway.binance requires api_key and secret_key (or TRADELOOP_BINANCE_* env)")
		}
	default:
		return fmt.Errorf("gateway.mode must be paper or binance, got %q", g.Mode)
	}
	if g.Binance.Proxy.Enabled && g.Binance.Proxy.URL == "" {
		return fmt.Errorf("gateway.binance.proxy.url is required when proxy is enabled")
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := scheduler.NewMarketClock(s.ClockConfig()); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if s.AutoStart {
		start, err := scheduler.ParseClock(s.StartAt)
		if err != nil {
			return fmt.Errorf("session.start_at: %w", err)
		}
		stop, err := scheduler.ParseClock(s.StopAt)
		if err != nil {
			return fmt.Errorf("session.stop_at: %w", err)
		}
		if stop <= start {
			return fmt.Errorf("session.stop_at must be after start_at")
		}
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
