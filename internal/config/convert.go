package config

import (
	"time"

	"tradeloop/internal/allocator"
	"tradeloop/internal/engine"
	"tradeloop/internal/gateway/binance"
	"tradeloop/internal/gateway/paper"
	"tradeloop/internal/risk"
	"tradeloop/internal/scheduler"
	"tradeloop/internal/strategy"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// EngineSettings maps the trading, risk and strategy sections onto the
// engine's settings.
func (c *Config) EngineSettings() engine.Settings {
	t := c.Trading
	alloc := make(allocator.AllocationTable, len(t.StrategyAllocations))
	for name, pct := range t.StrategyAllocations {
		if tag, err := strategy.ParseTag(name); err == nil {
			alloc[tag] = pct
		}
	}
	return engine.Settings{
		Symbols:          append([]string(nil), t.Symbols...),
		Timeframe:        t.Timeframe,
		BarLimit:         t.BarLimit,
		CheckInterval:    seconds(t.CheckInterval),
		ErrorBackoff:     seconds(t.ErrorBackoff),
		CallTimeout:      seconds(t.CallTimeout),
		FetchConcurrency: t.FetchConcurrency,
		MarketHoursOnly:  t.MarketHoursOnly,
		SizingFactor:     t.SizingFactor,
		LotSize:          t.LotSize,
		Limits: risk.Limits{
			MaxPositionValue: c.Risk.MaxPositionValue,
			MaxOpenPositions: c.Risk.MaxOpenPositions,
			MaxDailyLoss:     c.Risk.MaxDailyLoss,
			StopLossPct:      c.Risk.StopLossPct,
			TakeProfitPct:    c.Risk.TakeProfitPct,
		},
		Allocations: alloc,
		Params:      c.Strategies.params(),
	}
}

func (s StrategiesConfig) params() strategy.Params {
	return strategy.Params{
		Momentum: strategy.MomentumParams{
			Lookback:      s.Momentum.Lookback,
			BreakoutRatio: s.Momentum.BreakoutRatio,
			VolumeRatio:   s.Momentum.VolumeRatio,
		},
		MeanReversion: strategy.MeanReversionParams{
			Lookback:           s.MeanReversion.Lookback,
			DeviationThreshold: s.MeanReversion.DeviationThreshold,
			StrengthScale:      s.MeanReversion.StrengthScale,
		},
		RSI: strategy.RSIParams{
			Period:          s.RSI.Period,
			Oversold:        s.RSI.Oversold,
			StrengthDivisor: s.RSI.StrengthDivisor,
		},
		VWAP: strategy.VWAPParams{
			Window:         s.VWAP.Window,
			ProximityRatio: s.VWAP.ProximityRatio,
			StrengthScale:  s.VWAP.StrengthScale,
			MinStrength:    s.VWAP.MinStrength,
		},
		MACrossover: strategy.MACrossoverParams{
			Fast:          s.MACrossover.Fast,
			Slow:          s.MACrossover.Slow,
			StrengthScale: s.MACrossover.StrengthScale,
		},
	}
}

func (s SessionConfig) ClockConfig() scheduler.ClockConfig {
	return scheduler.ClockConfig{
		Timezone: s.Timezone,
		Open:     s.Open,
		Close:    s.Close,
		Holidays: append([]string(nil), s.Holidays...),
	}
}

// AutopilotWindow returns the auto start/stop offsets from local midnight.
func (s SessionConfig) AutopilotWindow() (start, stop, poll time.Duration, err error) {
	if start, err = scheduler.ParseClock(s.StartAt); err != nil {
		return 0, 0, 0, err
	}
	if stop, err = scheduler.ParseClock(s.StopAt); err != nil {
		return 0, 0, 0, err
	}
	return start, stop, seconds(s.PollSeconds), nil
}

func (b BinanceConfig) GatewayConfig() binance.Config {
	return binance.Config{
		RESTBaseURL:  b.RESTBaseURL,
		HTTPTimeout:  seconds(b.TimeoutSeconds),
		APIKey:       b.APIKey,
		SecretKey:    b.SecretKey,
		ProxyEnabled: b.Proxy.Enabled,
		RESTProxyURL: b.Proxy.URL,
	}
}

func (c *Config) PaperConfig() paper.Config {
	return paper.Config{
		StartingCash: c.Gateway.Paper.StartingEquity,
		Timeframe:    c.Trading.Timeframe,
	}
}
