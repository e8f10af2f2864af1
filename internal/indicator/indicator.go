package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"tradeloop/internal/market"
)

// RSI returns Wilder's RSI of the last close. ok is false when the series
// has period closes or fewer.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) <= period {
		return 0, false
	}
	hasLoss := false
	for i := 1; i < len(closes); i++ {
		if closes[i] < closes[i-1] {
			hasLoss = true
			break
		}
	}
	// Wilder smoothing keeps the average loss at zero only when no close ever fell.
	if !hasLoss {
		return 100, true
	}
	series := talib.Rsi(closes, period)
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return 0, false
	}
	return clamp(v, 0, 100), true
}

// SMA of the last n values.
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	series := talib.Sma(values, n)
	return series[len(series)-1], true
}

// MaxOf returns the largest of the last n values.
func MaxOf(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	series := talib.Max(values, n)
	return series[len(series)-1], true
}

// Mean of the last n values.
func Mean(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// VWAP over the last m bars using the typical price. ok is false when the
// window is short or carries no volume.
func VWAP(bars []market.Bar, m int) (float64, bool) {
	if m <= 0 || len(bars) < m {
		return 0, false
	}
	var pv, vol float64
	for _, b := range bars[len(bars)-m:] {
		pv += b.TypicalPrice() * b.Volume
		vol += b.Volume
	}
	if vol <= 0 {
		return 0, false
	}
	return pv / vol, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
