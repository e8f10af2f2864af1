package paper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"tradeloop/internal/market"
	"tradeloop/internal/scheduler"
)

// BarSource supplies history for simulated trading.
type BarSource interface {
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error)
}

// SyntheticSource generates deterministic bars from the symbol, seed and
// bar index, so repeated calls for the same window agree.
type SyntheticSource struct {
	Seed  int64
	nowFn func() time.Time
}

func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{Seed: seed, nowFn: time.Now}
}

func (s *SyntheticSource) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, ok := scheduler.ParseIntervalDuration(timeframe)
	if !ok {
		return nil, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	if limit <= 0 {
		limit = 100
	}
	now := time.Now
	if s.nowFn != nil {
		now = s.nowFn
	}
	// The last closed bar opens one interval before the current bucket.
	lastOpen := now().UTC().Truncate(tf).Add(-tf)
	lastIdx := lastOpen.UnixNano() / int64(tf)
	key := symbolKey(symbol, s.Seed)
	base := 20 + float64(key%480)
	out := make([]market.Bar, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		idx := lastIdx - int64(i)
		out = append(out, s.barAt(key, base, idx, tf))
	}
	return out, nil
}

func (s *SyntheticSource) barAt(key uint64, base float64, idx int64, tf time.Duration) market.Bar {
	prev := priceAt(key, base, idx-1)
	closePx := priceAt(key, base, idx)
	wick := base * 0.004 * (1 + noise(key^0x9e37, idx))
	vol := 1000 * (0.6 + 0.8*(noise(key^0x7f4a, idx)+1)/2)
	// volume spikes on up moves so breakouts occur
	if closePx > prev {
		vol *= 1.3
	}
	return market.Bar{
		Time:   time.Unix(0, idx*int64(tf)).UTC(),
		Open:   prev,
		High:   math.Max(prev, closePx) + wick,
		Low:    math.Max(0.01, math.Min(prev, closePx)-wick),
		Close:  closePx,
		Volume: math.Round(vol),
	}
}

func priceAt(key uint64, base float64, idx int64) float64 {
	phase := float64(key%97) / 97 * 2 * math.Pi
	x := float64(idx)
	cycle := 0.04*math.Sin(x/29+phase) + 0.02*math.Sin(x/7+2*phase)
	return math.Round(base*(1+cycle+0.006*noise(key, idx))*100) / 100
}

// noise maps (key, idx) to a stable value in [-1, 1].
func noise(key uint64, idx int64) float64 {
	h := fnv.New64a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(key >> (8 * i))
		buf[8+i] = byte(uint64(idx) >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return float64(h.Sum64()%20001)/10000 - 1
}

func symbolKey(symbol string, seed int64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(market.NormalizeSymbol(symbol)))
	return h.Sum64() ^ uint64(seed)
}
