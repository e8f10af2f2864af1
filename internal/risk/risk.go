package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/market"
)

// Limits are the hard bounds the engine enforces. They do not change while
// the engine runs.
type Limits struct {
	MaxPositionValue float64 `json:"max_position_value"`
	MaxOpenPositions int     `json:"max_open_positions"`
	MaxDailyLoss     float64 `json:"max_daily_loss"`
	StopLossPct      float64 `json:"stop_loss_pct"`
	TakeProfitPct    float64 `json:"take_profit_pct"`
}

func (l Limits) Validate() error {
	if l.MaxPositionValue <= 0 {
		return fmt.Errorf("max_position_value must be > 0")
	}
	if l.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be > 0")
	}
	if l.MaxDailyLoss <= 0 {
		return fmt.Errorf("max_daily_loss must be > 0")
	}
	if l.StopLossPct <= 0 || l.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0,1)")
	}
	if l.TakeProfitPct <= 0 {
		return fmt.Errorf("take_profit_pct must be > 0")
	}
	return nil
}

type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// Exit is a closing order for one position.
type Exit struct {
	Position exchange.Position
	Reason   ExitReason
	Side     market.Side
	Quantity float64
}

type Monitor struct {
	stopLoss   decimal.Decimal
	takeProfit decimal.Decimal
}

func NewMonitor(l Limits) *Monitor {
	return &Monitor{
		stopLoss:   decFromFloat(l.StopLossPct).Neg(),
		takeProfit: decFromFloat(l.TakeProfitPct),
	}
}

// Check returns the exit for one position, if any. Stop loss wins when both
// thresholds would trigger.
func (m *Monitor) Check(p exchange.Position) (Exit, bool) {
	if p.Quantity == 0 {
		return Exit{}, false
	}
	pct := decFromFloat(p.UnrealizedPnLPct)
	var reason ExitReason
	switch {
	case pct.LessThanOrEqual(m.stopLoss):
		reason = ExitStopLoss
	case pct.GreaterThanOrEqual(m.takeProfit):
		reason = ExitTakeProfit
	default:
		return Exit{}, false
	}
	return Exit{
		Position: p,
		Reason:   reason,
		Side:     p.Side.CloseSide(),
		Quantity: math.Abs(p.Quantity),
	}, true
}

// Scan checks every position in input order.
func (m *Monitor) Scan(positions []exchange.Position) []Exit {
	var out []Exit
	for _, p := range positions {
		if ex, ok := m.Check(p); ok {
			out = append(out, ex)
		}
	}
	return out
}

// DailyLossGuard trips once the day's P&L reaches the negative loss limit.
type DailyLossGuard struct {
	maxLoss decimal.Decimal
}

func NewDailyLossGuard(maxDailyLoss float64) DailyLossGuard {
	return DailyLossGuard{maxLoss: decFromFloat(maxDailyLoss).Neg()}
}

func (g DailyLossGuard) Breached(dailyPnL float64) bool {
	return decFromFloat(dailyPnL).LessThanOrEqual(g.maxLoss)
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// PnLPct computes the signed unrealized return of a position.
func PnLPct(side exchange.PositionSide, entry, current float64) float64 {
	if entry <= 0 || current <= 0 {
		return 0
	}
	e := decFromFloat(entry)
	r := decFromFloat(current).Sub(e).Div(e)
	if side == exchange.PositionShort {
		r = r.Neg()
	}
	f, _ := r.Float64()
	return f
}
