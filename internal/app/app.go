package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"tradeloop/internal/config"
	"tradeloop/internal/engine"
	"tradeloop/internal/logger"
	"tradeloop/internal/scheduler"
	"tradeloop/internal/store"
	"tradeloop/internal/store/equity"
	"tradeloop/internal/transport/http/control"
)

// App wires the engine to its control surface, autopilot and config watcher.
type App struct {
	cfg       *config.Manager
	engine    *engineController
	control   *control.Server
	autopilot *scheduler.Autopilot
	watcher   *config.Watcher
	ledger    store.Ledger
	equity    *equity.Store
	events    *engine.MemorySink

	startOnRun bool
	closeOnce  sync.Once
	Summary    *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run serves until ctx is cancelled or a component fails. The engine is
// stopped and the stores closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.engine.BindContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	if a.control != nil {
		group.Go(func() error {
			if err := a.control.Start(ctx); err != nil {
				return fmt.Errorf("control http server error: %w", err)
			}
			return nil
		})
	}
	if a.autopilot != nil {
		group.Go(func() error { return a.autopilot.Run(ctx) })
	}
	if a.watcher != nil {
		group.Go(func() error {
			if err := a.watcher.Run(ctx); err != nil {
				logger.Warnf("config watcher stopped: %v", err)
			}
			return nil
		})
	}
	if a.startOnRun {
		group.Go(func() error {
			if err := a.engine.Start(ctx); err != nil && !errors.Is(err, engine.ErrAlreadyRunning) {
				return fmt.Errorf("start engine: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		if err := a.engine.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
			logger.Warnf("engine stop on shutdown: %v", err)
		}
		return nil
	})
	return group.Wait()
}

func (a *App) onConfigChange(cfg *config.Config) {
	a.cfg.Replace(cfg)
	if err := a.engine.Offer(cfg.EngineSettings()); err != nil {
		logger.Errorf("reloaded configuration rejected by engine: %v", err)
		return
	}
	logger.Infof("configuration reloaded; gateway, store and session changes need a restart")
}

// Engine exposes the running controller for tests and tooling.
func (a *App) Engine() *engine.Engine {
	if a == nil || a.engine == nil {
		return nil
	}
	return a.engine.Engine
}

func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.ledger != nil {
			if err := a.ledger.Close(); err != nil {
				logger.Warnf("close ledger: %v", err)
			}
		}
		if a.equity != nil {
			if err := a.equity.Close(); err != nil {
				logger.Warnf("close equity history: %v", err)
			}
		}
	})
}
