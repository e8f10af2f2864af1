package app

import (
	"context"
	"errors"
	"sync"

	"tradeloop/internal/engine"
	"tradeloop/internal/logger"
)

// engineController fronts the engine for the HTTP surface, the autopilot and
// the config watcher. Settings that arrive while a run is active are parked
// and applied on the next Start.
type engineController struct {
	*engine.Engine

	mu     sync.Mutex
	parked *engine.Settings
}

func newEngineController(e *engine.Engine) *engineController {
	return &engineController{Engine: e}
}

func (c *engineController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.parked != nil {
		switch err := c.Engine.Reconfigure(*c.parked); {
		case err == nil:
			logger.Infof("applied parked configuration (%d symbols)", len(c.parked.Symbols))
			c.parked = nil
		case errors.Is(err, engine.ErrEngineRunning):
		default:
			logger.Warnf("dropping parked configuration: %v", err)
			c.parked = nil
		}
	}
	c.mu.Unlock()
	return c.Engine.Start(ctx)
}

// Reconfigure applies s now and discards anything parked, so a direct
// update is never overwritten by an older file change.
func (c *engineController) Reconfigure(s engine.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Engine.Reconfigure(s); err != nil {
		return err
	}
	c.parked = nil
	return nil
}

// Offer applies s if the engine is stopped, otherwise parks it.
func (c *engineController) Offer(s engine.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.Engine.Reconfigure(s)
	switch {
	case err == nil:
		c.parked = nil
		return nil
	case errors.Is(err, engine.ErrEngineRunning):
		cp := s
		c.parked = &cp
		logger.Infof("engine running; configuration parked until next start")
		return nil
	default:
		return err
	}
}

func (c *engineController) Parked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parked != nil
}
