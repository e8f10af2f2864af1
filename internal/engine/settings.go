package engine

import (
	"fmt"
	"time"

	"tradeloop/internal/allocator"
	"tradeloop/internal/market"
	"tradeloop/internal/risk"
	"tradeloop/internal/strategy"
)

// Settings is everything the loop reads. A running engine keeps the copy it
// started with.
type Settings struct {
	Symbols          []string
	Timeframe        string
	BarLimit         int
	CheckInterval    time.Duration
	ErrorBackoff     time.Duration
	CallTimeout      time.Duration
	FetchConcurrency int
	MarketHoursOnly  bool
	SizingFactor     float64
	LotSize          float64

	Limits      risk.Limits
	Allocations allocator.AllocationTable
	Params      strategy.Params
}

func DefaultSettings() Settings {
	return Settings{
		Timeframe:        "5m",
		BarLimit:         50,
		CheckInterval:    60 * time.Second,
		ErrorBackoff:     5 * time.Second,
		CallTimeout:      10 * time.Second,
		FetchConcurrency: 8,
		MarketHoursOnly:  true,
		SizingFactor:     1,
		LotSize:          1,
		Limits: risk.Limits{
			MaxPositionValue: 1000,
			MaxOpenPositions: 5,
			MaxDailyLoss:     500,
			StopLossPct:      0.02,
			TakeProfitPct:    0.05,
		},
		Allocations: allocator.AllocationTable{
			strategy.TagMomentum:      25,
			strategy.TagMeanReversion: 50,
			strategy.TagRSI:           15,
			strategy.TagVWAP:          10,
		},
		Params: strategy.DefaultParams(),
	}
}

func (s Settings) Validate() error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	seen := make(map[string]bool, len(s.Symbols))
	for _, sym := range s.Symbols {
		norm := market.NormalizeSymbol(sym)
		if norm == "" {
			return fmt.Errorf("symbols contains an empty entry")
		}
		if seen[norm] {
			return fmt.Errorf("symbol %s listed twice", sym)
		}
		seen[norm] = true
	}
	if s.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be > 0")
	}
	if s.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be > 0")
	}
	if s.BarLimit <= 0 {
		return fmt.Errorf("bar_limit must be > 0")
	}
	if err := s.Limits.Validate(); err != nil {
		return err
	}
	return s.Allocations.Validate()
}
