package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/market"
)

func TestRSIBounded(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		closes := make([]float64, 40)
		price := 100.0
		for i := range closes {
			price *= 1 + (r.Float64()-0.5)*0.06
			closes[i] = price
		}
		v, ok := RSI(closes, 14)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestRSIShortInput(t *testing.T) {
	_, ok := RSI([]float64{1, 2, 3}, 14)
	assert.False(t, ok)
	_, ok = RSI(make([]float64, 14), 14)
	assert.False(t, ok)
}

func TestRSINoLossesIs100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	v, ok := RSI(closes, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	v, ok = RSI(flat, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestRSIFallingSeriesIsLow(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(200 - i)
	}
	closes[5] = closes[4] + 0.5
	v, ok := RSI(closes, 14)
	require.True(t, ok)
	assert.Less(t, v, 10.0)
}

func TestVWAPExact(t *testing.T) {
	now := time.Now()
	bars := []market.Bar{
		{Time: now, High: 11, Low: 9, Close: 10, Volume: 100},
		{Time: now, High: 22, Low: 18, Close: 20, Volume: 300},
		{Time: now, High: 31, Low: 29, Close: 30, Volume: 0},
		{Time: now, High: 13, Low: 10, Close: 10, Volume: 50},
	}
	for m := 1; m <= len(bars); m++ {
		var pv, vol float64
		for _, b := range bars[len(bars)-m:] {
			pv += (b.High + b.Low + b.Close) / 3 * b.Volume
			vol += b.Volume
		}
		got, ok := VWAP(bars, m)
		require.True(t, ok, "window %d", m)
		assert.InDelta(t, pv/vol, got, 1e-12)
	}
}

func TestVWAPZeroVolume(t *testing.T) {
	bars := []market.Bar{{High: 1, Low: 1, Close: 1}, {High: 2, Low: 2, Close: 2}}
	_, ok := VWAP(bars, 2)
	assert.False(t, ok)
	_, ok = VWAP(bars, 3)
	assert.False(t, ok)
}

func TestSMAAndMax(t *testing.T) {
	vals := []float64{1, 5, 3, 4, 2}
	sma, ok := SMA(vals, 3)
	require.True(t, ok)
	assert.InDelta(t, 3.0, sma, 1e-9)

	hi, ok := MaxOf(vals, 4)
	require.True(t, ok)
	assert.Equal(t, 5.0, hi)

	mean, ok := Mean(vals, 5)
	require.True(t, ok)
	assert.InDelta(t, 3.0, mean, 1e-9)

	_, ok = SMA(vals, 6)
	assert.False(t, ok)
	assert.False(t, math.IsNaN(sma))
}
