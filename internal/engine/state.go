package engine

import "time"

type RunState string

const (
	Stopped RunState = "stopped"
	Running RunState = "running"
	// Paused keeps monitoring exits but submits no new entries.
	Paused RunState = "paused"
)

// State is the engine's published status. Values returned by Status are
// copies and never change after they are returned.
type State struct {
	RunState      RunState  `json:"run_state"`
	TradingDay    string    `json:"trading_day,omitempty"`
	StartEquity   float64   `json:"start_equity"`
	Equity        float64   `json:"equity"`
	DailyPnL      float64   `json:"daily_pnl"`
	EquityStale   bool      `json:"equity_stale,omitempty"`
	TradesToday   int       `json:"trades_today"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	OpenPositions int       `json:"open_positions"`
	Ticks         int64     `json:"ticks"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LastTickAt    time.Time `json:"last_tick_at,omitempty"`
	LastTickID    string    `json:"last_tick_id,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

func (s State) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total)
}

// resetDay starts a new trading day from the given equity.
func (s *State) resetDay(day string, equity float64) {
	s.TradingDay = day
	s.StartEquity = equity
	s.Equity = equity
	s.DailyPnL = 0
	s.TradesToday = 0
	s.Wins = 0
	s.Losses = 0
}
