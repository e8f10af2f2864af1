package config

import "strings"

// Config is the process configuration.
type Config struct {
	App        AppConfig        `toml:"app"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Strategies StrategiesConfig `toml:"strategies"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Store      StoreConfig      `toml:"store"`
	Session    SessionConfig    `toml:"session"`
	Notify     NotifyConfig     `toml:"notify"`

	// files lists every file merged into this config, includes first.
	files []string
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
	// OverridePath is written by the control surface and merged last.
	OverridePath string `toml:"override_path"`
}

type TradingConfig struct {
	Symbols             []string           `toml:"symbols"`
	StrategyAllocations map[string]float64 `toml:"strategy_allocations"`
	CheckInterval       int                `toml:"check_interval"` // seconds
	MarketHoursOnly     bool               `toml:"market_hours_only"`
	Timeframe           string             `toml:"timeframe"`
	BarLimit            int                `toml:"bar_limit"`
	FetchConcurrency    int                `toml:"fetch_concurrency"`
	SizingFactor        float64            `toml:"sizing_factor"`
	LotSize             float64            `toml:"lot_size"`
	ErrorBackoff        int                `toml:"error_backoff"` // seconds
	CallTimeout         int                `toml:"call_timeout"`  // seconds
}

type RiskConfig struct {
	MaxPositionValue float64 `toml:"max_position_value"`
	MaxOpenPositions int     `toml:"max_open_positions"`
	MaxDailyLoss     float64 `toml:"max_daily_loss"`
	StopLossPct      float64 `toml:"stop_loss_pct"`
	TakeProfitPct    float64 `toml:"take_profit_pct"`
}

type StrategiesConfig struct {
	Momentum      MomentumConfig      `toml:"momentum"`
	MeanReversion MeanReversionConfig `toml:"mean_reversion"`
	RSI           RSIConfig           `toml:"rsi"`
	VWAP          VWAPConfig          `toml:"vwap"`
	MACrossover   MACrossoverConfig   `toml:"ma_crossover"`
}

type MomentumConfig struct {
	Lookback      int     `toml:"lookback"`
	BreakoutRatio float64 `toml:"breakout_ratio"`
	VolumeRatio   float64 `toml:"volume_ratio"`
}

type MeanReversionConfig struct {
	Lookback           int     `toml:"lookback"`
	DeviationThreshold float64 `toml:"deviation_threshold"`
	StrengthScale      float64 `toml:"strength_scale"`
}

type RSIConfig struct {
	Period          int     `toml:"period"`
	Oversold        float64 `toml:"oversold"`
	StrengthDivisor float64 `toml:"strength_divisor"`
}

type VWAPConfig struct {
	Window         int     `toml:"window"`
	ProximityRatio float64 `toml:"proximity_ratio"`
	StrengthScale  float64 `toml:"strength_scale"`
	MinStrength    float64 `toml:"min_strength"`
}

type MACrossoverConfig struct {
	Fast          int     `toml:"fast"`
	Slow          int     `toml:"slow"`
	StrengthScale float64 `toml:"strength_scale"`
}

type GatewayConfig struct {
	Mode    string        `toml:"mode"` // paper | binance
	Binance BinanceConfig `toml:"binance"`
	Paper   PaperConfig   `toml:"paper"`
}

type BinanceConfig struct {
	RESTBaseURL    string      `toml:"rest_base_url"`
	APIKey         string      `toml:"api_key"`
	SecretKey      string      `toml:"secret_key"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Proxy          ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
}

func (p *ProxyConfig) normalize() {
	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		p.Enabled = false
	}
}

type PaperConfig struct {
	StartingEquity float64 `toml:"starting_equity"`
	// DataSource picks where paper bars come from: synthetic | binance.
	DataSource string `toml:"data_source"`
	Seed       int64  `toml:"seed"`
}

type StoreConfig struct {
	LedgerPath string `toml:"ledger_path"`
	EquityPath string `toml:"equity_path"`
}

type SessionConfig struct {
	Timezone string   `toml:"timezone"`
	Open     string   `toml:"open"`  // "09:30"
	Close    string   `toml:"close"` // "16:00"
	Holidays []string `toml:"holidays"`

	AutoStart   bool   `toml:"auto_start"`
	StartAt     string `toml:"start_at"`
	StopAt      string `toml:"stop_at"`
	PollSeconds int    `toml:"poll_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// Files returns the files this config was merged from.
func (c *Config) Files() []string {
	return append([]string(nil), c.files...)
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
