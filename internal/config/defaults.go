package config

import (
	"strings"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultOverrideFile     = "override.yaml"
	defaultTimeframe        = "5m"
	defaultBarLimit         = 50
	defaultCheckInterval    = 60
	defaultFetchConcurrency = 8
	defaultErrorBackoff     = 5
	defaultCallTimeout      = 10
	defaultMaxPositionValue = 1000
	defaultMaxOpenPositions = 5
	defaultMaxDailyLoss     = 500
	defaultStopLossPct      = 0.02
	defaultTakeProfitPct    = 0.05
	defaultGatewayMode      = "paper"
	defaultBinanceREST      = "https://fapi.binance.com"
	defaultBinanceTimeout   = 15
	defaultPaperEquity      = 100000
	defaultPaperSource      = "synthetic"
	defaultLedgerPath       = "data/trades.db"
	defaultEquityPath       = "data/equity.db"
	defaultTimezone         = "America/New_York"
	defaultSessionOpen      = "09:30"
	defaultSessionClose     = "16:00"
	defaultAutoStartAt      = "09:25"
	defaultAutoStopAt       = "16:05"
	defaultPollSeconds      = 30
)

var defaultAllocations = map[string]float64{
	"momentum":       25,
	"mean_reversion": 50,
	"rsi":            15,
	"vwap":           10,
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
	c.Gateway.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Session.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if len(t.StrategyAllocations) == 0 && !keys.isSet("trading.strategy_allocations") {
		t.StrategyAllocations = make(map[string]float64, len(defaultAllocations))
		for k, v := range defaultAllocations {
			t.StrategyAllocations[k] = v
		}
	}
	applyFieldDefaults(keys,
		intFieldDefault("trading.check_interval", &t.CheckInterval, defaultCheckInterval),
		boolFieldDefault("trading.market_hours_only", &t.MarketHoursOnly, true),
		stringFieldDefault("trading.timeframe", &t.Timeframe, defaultTimeframe),
		intFieldDefault("trading.bar_limit", &t.BarLimit, defaultBarLimit),
		intFieldDefault("trading.fetch_concurrency", &t.FetchConcurrency, defaultFetchConcurrency),
		floatFieldDefault("trading.sizing_factor", &t.SizingFactor, 1),
		floatFieldDefault("trading.lot_size", &t.LotSize, 1),
		intFieldDefault("trading.error_backoff", &t.ErrorBackoff, defaultErrorBackoff),
		intFieldDefault("trading.call_timeout", &t.CallTimeout, defaultCallTimeout),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_position_value", &r.MaxPositionValue, defaultMaxPositionValue),
		intFieldDefault("risk.max_open_positions", &r.MaxOpenPositions, defaultMaxOpenPositions),
		floatFieldDefault("risk.max_daily_loss", &r.MaxDailyLoss, defaultMaxDailyLoss),
		floatFieldDefault("risk.stop_loss_pct", &r.StopLossPct, defaultStopLossPct),
		floatFieldDefault("risk.take_profit_pct", &r.TakeProfitPct, defaultTakeProfitPct),
	)
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("strategies.momentum.lookback", &s.Momentum.Lookback, 20),
		floatFieldDefault("strategies.momentum.breakout_ratio", &s.Momentum.BreakoutRatio, 0.98),
		floatFieldDefault("strategies.momentum.volume_ratio", &s.Momentum.VolumeRatio, 1.1),
		intFieldDefault("strategies.mean_reversion.lookback", &s.MeanReversion.Lookback, 20),
		floatFieldDefault("strategies.mean_reversion.deviation_threshold", &s.MeanReversion.DeviationThreshold, 0.015),
		floatFieldDefault("strategies.mean_reversion.strength_scale", &s.MeanReversion.StrengthScale, 100),
		intFieldDefault("strategies.rsi.period", &s.RSI.Period, 14),
		floatFieldDefault("strategies.rsi.oversold", &s.RSI.Oversold, 40),
		floatFieldDefault("strategies.rsi.strength_divisor", &s.RSI.StrengthDivisor, 10),
		intFieldDefault("strategies.vwap.window", &s.VWAP.Window, 20),
		floatFieldDefault("strategies.vwap.proximity_ratio", &s.VWAP.ProximityRatio, 1.02),
		floatFieldDefault("strategies.vwap.strength_scale", &s.VWAP.StrengthScale, 100),
		floatFieldDefault("strategies.vwap.min_strength", &s.VWAP.MinStrength, 0.5),
		intFieldDefault("strategies.ma_crossover.fast", &s.MACrossover.Fast, 10),
		intFieldDefault("strategies.ma_crossover.slow", &s.MACrossover.Slow, 30),
		floatFieldDefault("strategies.ma_crossover.strength_scale", &s.MACrossover.StrengthScale, 100),
	)
}

func (g *GatewayConfig) applyDefaults(keys keySet) {
	g.Binance.Proxy.normalize()
	applyFieldDefaults(keys,
		stringFieldDefault("gateway.mode", &g.Mode, defaultGatewayMode),
		stringFieldDefault("gateway.binance.rest_base_url", &g.Binance.RESTBaseURL, defaultBinanceREST),
		intFieldDefault("gateway.binance.timeout_seconds", &g.Binance.TimeoutSeconds, defaultBinanceTimeout),
		floatFieldDefault("gateway.paper.starting_equity", &g.Paper.StartingEquity, defaultPaperEquity),
		stringFieldDefault("gateway.paper.data_source", &g.Paper.DataSource, defaultPaperSource),
	)
	g.Mode = strings.ToLower(strings.TrimSpace(g.Mode))
	g.Paper.DataSource = strings.ToLower(strings.TrimSpace(g.Paper.DataSource))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.ledger_path", &s.LedgerPath, defaultLedgerPath),
		stringFieldDefault("store.equity_path", &s.EquityPath, defaultEquityPath),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("session.timezone", &s.Timezone, defaultTimezone),
		stringFieldDefault("session.open", &s.Open, defaultSessionOpen),
		stringFieldDefault("session.close", &s.Close, defaultSessionClose),
		stringFieldDefault("session.start_at", &s.StartAt, defaultAutoStartAt),
		stringFieldDefault("session.stop_at", &s.StopAt, defaultAutoStopAt),
		intFieldDefault("session.poll_seconds", &s.PollSeconds, defaultPollSeconds),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

// boolFieldDefault applies whenever the key is absent, since false is a
// legal explicit value.
func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
