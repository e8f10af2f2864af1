package scheduler

import (
	"time"

	"tradeloop/internal/market"
)

const DefaultBarGrace = 10 * time.Second

// DropUnclosedBar drops the last bar if it is still forming. Exchanges
// return the in-progress bar as the final element of a kline response.
func DropUnclosedBar(bars []market.Bar, interval time.Duration) []market.Bar {
	return dropUnclosedBarAt(bars, interval, time.Now().UTC(), DefaultBarGrace)
}

func dropUnclosedBarAt(bars []market.Bar, interval time.Duration, now time.Time, grace time.Duration) []market.Bar {
	if len(bars) == 0 || interval <= 0 {
		return bars
	}
	if grace < 0 {
		grace = 0
	}
	last := bars[len(bars)-1]
	if last.Time.IsZero() {
		return bars
	}
	if now.Before(last.Time.Add(interval + grace)) {
		return bars[:len(bars)-1]
	}
	return bars
}
