package app

import (
	"fmt"
	"sort"
	"strings"

	"tradeloop/internal/config"
)

type StartupSummary struct {
	Trading  TradingSummary
	Risk     config.RiskConfig
	Gateway  string
	Session  SessionSummary
	HTTPAddr string
}

type TradingSummary struct {
	Symbols         []string
	Allocations     map[string]float64
	Timeframe       string
	CheckInterval   int
	MarketHoursOnly bool
}

type SessionSummary struct {
	Timezone  string
	Hours     string
	AutoStart string
}

func newStartupSummary(cfg *config.Config, gatewayName, addr string) *StartupSummary {
	s := &StartupSummary{
		Trading: TradingSummary{
			Symbols:         append([]string(nil), cfg.Trading.Symbols...),
			Allocations:     cfg.Trading.StrategyAllocations,
			Timeframe:       cfg.Trading.Timeframe,
			CheckInterval:   cfg.Trading.CheckInterval,
			MarketHoursOnly: cfg.Trading.MarketHoursOnly,
		},
		Risk:     cfg.Risk,
		Gateway:  gatewayName,
		HTTPAddr: addr,
		Session: SessionSummary{
			Timezone:  cfg.Session.Timezone,
			Hours:     cfg.Session.Open + "-" + cfg.Session.Close,
			AutoStart: "off",
		},
	}
	if cfg.Session.AutoStart {
		s.Session.AutoStart = cfg.Session.StartAt + "-" + cfg.Session.StopAt
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[TRADING]")
	fmt.Printf("  symbols:        %s\n", formatList(s.Trading.Symbols))
	fmt.Printf("  timeframe:      %s\n", s.Trading.Timeframe)
	fmt.Printf("  check interval: %ds (market hours only: %t)\n", s.Trading.CheckInterval, s.Trading.MarketHoursOnly)
	fmt.Println()

	fmt.Println("[STRATEGIES]")
	if len(s.Trading.Allocations) == 0 {
		fmt.Println("  (none)")
	} else {
		names := make([]string, 0, len(s.Trading.Allocations))
		for name := range s.Trading.Allocations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pct := s.Trading.Allocations[name]
			state := "enabled"
			if pct <= 0 {
				state = "disabled"
			}
			fmt.Printf("  - %-15s %5.1f%% (%s)\n", name, pct, state)
		}
	}
	fmt.Println()

	fmt.Println("[RISK]")
	fmt.Printf("  max position value: %.2f\n", s.Risk.MaxPositionValue)
	fmt.Printf("  max open positions: %d\n", s.Risk.MaxOpenPositions)
	fmt.Printf("  max daily loss:     %.2f\n", s.Risk.MaxDailyLoss)
	fmt.Printf("  stop loss / take profit: %.2f%% / %.2f%%\n", s.Risk.StopLossPct*100, s.Risk.TakeProfitPct*100)
	fmt.Println()

	fmt.Println("[RUNTIME]")
	fmt.Printf("  gateway:   %s\n", s.Gateway)
	fmt.Printf("  session:   %s %s\n", s.Session.Hours, s.Session.Timezone)
	fmt.Printf("  autopilot: %s\n", s.Session.AutoStart)
	fmt.Printf("  http:      %s\n", s.HTTPAddr)
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
