package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Override is the subset of settings the control surface may change. Nil
// fields are left alone. It is persisted in the same shape as the main file
// so Load can merge it.
type Override struct {
	Trading *TradingOverride `yaml:"trading,omitempty" json:"trading,omitempty"`
	Risk    *RiskOverride    `yaml:"risk,omitempty" json:"risk,omitempty"`
}

type TradingOverride struct {
	Symbols             []string           `yaml:"symbols,omitempty" json:"symbols,omitempty"`
	StrategyAllocations map[string]float64 `yaml:"strategy_allocations,omitempty" json:"strategy_allocations,omitempty"`
	CheckInterval       *int               `yaml:"check_interval,omitempty" json:"check_interval,omitempty"`
	MarketHoursOnly     *bool              `yaml:"market_hours_only,omitempty" json:"market_hours_only,omitempty"`
}

type RiskOverride struct {
	MaxPositionValue *float64 `yaml:"max_position_value,omitempty" json:"max_position_value,omitempty"`
	MaxOpenPositions *int     `yaml:"max_open_positions,omitempty" json:"max_open_positions,omitempty"`
	MaxDailyLoss     *float64 `yaml:"max_daily_loss,omitempty" json:"max_daily_loss,omitempty"`
	StopLossPct      *float64 `yaml:"stop_loss_pct,omitempty" json:"stop_loss_pct,omitempty"`
	TakeProfitPct    *float64 `yaml:"take_profit_pct,omitempty" json:"take_profit_pct,omitempty"`
}

func (o Override) Empty() bool {
	return o.Trading == nil && o.Risk == nil
}

// Merge layers next over o.
func (o Override) Merge(next Override) Override {
	if next.Trading != nil {
		if o.Trading == nil {
			o.Trading = &TradingOverride{}
		}
		t := *o.Trading
		n := next.Trading
		if n.Symbols != nil {
			t.Symbols = n.Symbols
		}
		if n.StrategyAllocations != nil {
			t.StrategyAllocations = n.StrategyAllocations
		}
		if n.CheckInterval != nil {
			t.CheckInterval = n.CheckInterval
		}
		if n.MarketHoursOnly != nil {
			t.MarketHoursOnly = n.MarketHoursOnly
		}
		o.Trading = &t
	}
	if next.Risk != nil {
		if o.Risk == nil {
			o.Risk = &RiskOverride{}
		}
		r := *o.Risk
		n := next.Risk
		if n.MaxPositionValue != nil {
			r.MaxPositionValue = n.MaxPositionValue
		}
		if n.MaxOpenPositions != nil {
			r.MaxOpenPositions = n.MaxOpenPositions
		}
		if n.MaxDailyLoss != nil {
			r.MaxDailyLoss = n.MaxDailyLoss
		}
		if n.StopLossPct != nil {
			r.StopLossPct = n.StopLossPct
		}
		if n.TakeProfitPct != nil {
			r.TakeProfitPct = n.TakeProfitPct
		}
		o.Risk = &r
	}
	return o
}

// Apply returns a copy of c with the override applied and validated.
func (c *Config) Apply(o Override) (*Config, error) {
	out := *c
	out.files = c.Files()
	if t := o.Trading; t != nil {
		if t.Symbols != nil {
			out.Trading.Symbols = append([]string(nil), t.Symbols...)
		}
		if t.StrategyAllocations != nil {
			out.Trading.StrategyAllocations = make(map[string]float64, len(t.StrategyAllocations))
			for k, v := range t.StrategyAllocations {
				out.Trading.StrategyAllocations[k] = v
			}
		}
		if t.CheckInterval != nil {
			out.Trading.CheckInterval = *t.CheckInterval
		}
		if t.MarketHoursOnly != nil {
			out.Trading.MarketHoursOnly = *t.MarketHoursOnly
		}
	}
	if r := o.Risk; r != nil {
		if r.MaxPositionValue != nil {
			out.Risk.MaxPositionValue = *r.MaxPositionValue
		}
		if r.MaxOpenPositions != nil {
			out.Risk.MaxOpenPositions = *r.MaxOpenPositions
		}
		if r.MaxDailyLoss != nil {
			out.Risk.MaxDailyLoss = *r.MaxDailyLoss
		}
		if r.StopLossPct != nil {
			out.Risk.StopLossPct = *r.StopLossPct
		}
		if r.TakeProfitPct != nil {
			out.Risk.TakeProfitPct = *r.TakeProfitPct
		}
	}
	if err := validate(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadOverride returns an empty override when the file does not exist.
func ReadOverride(path string) (Override, error) {
	var o Override
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return o, err
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse override %s: %w", path, err)
	}
	return o, nil
}

// WriteOverride merges o into the file at path, replacing it atomically.
func WriteOverride(path string, o Override) (Override, error) {
	current, err := ReadOverride(path)
	if err != nil {
		return Override{}, err
	}
	merged := current.Merge(o)
	data, err := yaml.Marshal(merged)
	if err != nil {
		return Override{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Override{}, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Override{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return Override{}, err
	}
	return merged, nil
}
