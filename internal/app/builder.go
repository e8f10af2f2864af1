package app

import (
	"context"
	"fmt"
	"strings"

	"tradeloop/internal/config"
	"tradeloop/internal/engine"
	"tradeloop/internal/gateway"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/gateway/notifier"
	"tradeloop/internal/logger"
	"tradeloop/internal/scheduler"
	"tradeloop/internal/store"
	"tradeloop/internal/store/equity"
	"tradeloop/internal/store/sqlite"
	"tradeloop/internal/transport/http/control"
)

const eventBuffer = 500

type AppBuilder struct {
	cfg        *config.Config
	configPath string
	startOnRun bool

	gatewayFn  func(*config.Config) (exchange.Gateway, error)
	ledgerFn   func(string) (store.Ledger, error)
	equityFn   func(string) (*equity.Store, error)
	notifierFn func(config.TelegramConfig) notifier.TextNotifier
	controlFn  func(control.ServerConfig) (*control.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithConfigPath enables hot reload of the given config file.
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.configPath = strings.TrimSpace(path) }
}

// WithStartOnRun starts the engine as soon as the app runs.
func WithStartOnRun(start bool) AppBuilderOption {
	return func(b *AppBuilder) { b.startOnRun = start }
}

func WithGateway(gw exchange.Gateway) AppBuilderOption {
	return func(b *AppBuilder) {
		b.gatewayFn = func(*config.Config) (exchange.Gateway, error) { return gw, nil }
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(config.TelegramConfig) notifier.TextNotifier { return n }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		gatewayFn:  gateway.NewFromConfig,
		ledgerFn:   openLedger,
		equityFn:   equity.Open,
		notifierFn: newTelegram,
		controlFn:  control.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openLedger(path string) (store.Ledger, error) {
	st, err := sqlite.NewSqliteStore(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func newTelegram(cfg config.TelegramConfig) notifier.TextNotifier {
	if !cfg.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.BotToken, cfg.ChatID)
}

func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	gw, err := b.gatewayFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}
	logger.Infof("✓ gateway ready: %s", gw.Name())

	ledger, err := b.ledgerFn(cfg.Store.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open trade ledger: %w", err)
	}
	defer func() {
		if err != nil {
			_ = ledger.Close()
		}
	}()
	eqStore, err := b.equityFn(cfg.Store.EquityPath)
	if err != nil {
		return nil, fmt.Errorf("open equity history: %w", err)
	}
	defer func() {
		if err != nil {
			_ = eqStore.Close()
		}
	}()
	logger.Infof("✓ stores ready: ledger=%s equity=%s", cfg.Store.LedgerPath, cfg.Store.EquityPath)

	clock, err := scheduler.NewMarketClock(cfg.Session.ClockConfig())
	if err != nil {
		return nil, fmt.Errorf("init market clock: %w", err)
	}

	events := engine.NewMemorySink(eventBuffer)
	sinks := engine.MultiSink{engine.LogSink{}, events}
	if n := b.notifierFn(cfg.Notify.Telegram); n != nil {
		sinks = append(sinks, engine.NotifySink{Notifier: n})
		logger.Infof("✓ telegram notifications enabled")
	}

	eng, err := engine.New(engine.Deps{
		Gateway: gw,
		Ledger:  ledger,
		Equity:  eqStore,
		Clock:   clock,
		Sink:    sinks,
	}, cfg.EngineSettings())
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	ctrl := newEngineController(eng)
	mgr := config.NewManager(cfg)

	srv, err := b.controlFn(control.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Engine:  ctrl,
		Trades:  ledger,
		Equity:  eqStore,
		Events:  events,
		Broker:  gw,
		Config:  mgr,
		Timeout: eng.Settings().CallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init control server: %w", err)
	}

	var pilot *scheduler.Autopilot
	if cfg.Session.AutoStart {
		start, stop, poll, err := cfg.Session.AutopilotWindow()
		if err != nil {
			return nil, fmt.Errorf("autopilot window: %w", err)
		}
		pilot = &scheduler.Autopilot{Clock: clock, Target: ctrl, StartAt: start, StopAt: stop, Interval: poll}
	}

	a := &App{
		cfg:        mgr,
		engine:     ctrl,
		control:    srv,
		autopilot:  pilot,
		ledger:     ledger,
		equity:     eqStore,
		events:     events,
		startOnRun: b.startOnRun,
		Summary:    newStartupSummary(cfg, gw.Name(), srv.Addr()),
	}
	if b.configPath != "" {
		a.watcher = config.NewWatcher(cfg, b.configPath, a.onConfigChange)
	}
	return a, nil
}
