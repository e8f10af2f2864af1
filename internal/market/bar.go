package market

import (
	"strings"
	"time"
)

// Bar is one OHLCV sample. Series are ordered oldest first.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Trades int64     `json:"trades,omitempty"`
}

func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Last returns the final bar. Callers must check the length first.
func Last(bars []Bar) Bar {
	return bars[len(bars)-1]
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// NormalizeSymbol upper-cases a symbol and drops pair separators, so
// "btc/usdt" and "BTCUSDT" compare equal.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}
