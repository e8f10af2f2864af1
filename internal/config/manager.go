package config

import (
	"fmt"
	"sync"
)

// Manager holds the live config. The control surface and the file watcher
// both go through it.
type Manager struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Preview applies o to the current config without persisting it.
func (m *Manager) Preview(o Override) (*Config, error) {
	return m.Current().Apply(o)
}

// Commit persists o to the override file and makes next current.
func (m *Manager) Commit(o Override, next *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := WriteOverride(m.cfg.App.OverridePath, o); err != nil {
		return fmt.Errorf("write override: %w", err)
	}
	m.cfg = next
	return nil
}

// Replace swaps in a config reloaded from disk.
func (m *Manager) Replace(cfg *Config) {
	if cfg == nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}
