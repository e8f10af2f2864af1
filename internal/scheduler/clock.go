package scheduler

import (
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// ClockConfig describes one exchange session in its local timezone.
type ClockConfig struct {
	Timezone string
	Open     string // "15:04"
	Close    string
	Holidays []string // "2006-01-02"
}

// MarketClock answers session questions in the exchange timezone.
type MarketClock struct {
	loc      *time.Location
	open     time.Duration
	close    time.Duration
	holidays map[string]struct{}
	nowFn    func() time.Time
}

func NewMarketClock(cfg ClockConfig) (*MarketClock, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", tz, err)
	}
	open, err := ParseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	closeAt, err := ParseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	if closeAt <= open {
		return nil, fmt.Errorf("session close %s must be after open %s", cfg.Close, cfg.Open)
	}
	holidays := make(map[string]struct{}, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		h = strings.TrimSpace(h)
		if _, err := time.Parse(dayLayout, h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		holidays[h] = struct{}{}
	}
	return &MarketClock{loc: loc, open: open, close: closeAt, holidays: holidays, nowFn: time.Now}, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (c *MarketClock) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		c.nowFn = fn
	}
}

func (c *MarketClock) Now() time.Time { return c.nowFn().In(c.loc) }

func (c *MarketClock) Location() *time.Location { return c.loc }

// TradingDay is the calendar date of t in the session timezone.
func (c *MarketClock) TradingDay(t time.Time) string {
	return t.In(c.loc).Format(dayLayout)
}

func (c *MarketClock) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[local.Format(dayLayout)]
	return !holiday
}

// IsOpen reports whether t falls inside the regular session.
func (c *MarketClock) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	since := sinceMidnight(t.In(c.loc))
	return since >= c.open && since < c.close
}

// Within reports whether t is a trading day and between from and to
// (offsets from local midnight).
func (c *MarketClock) Within(t time.Time, from, to time.Duration) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	since := sinceMidnight(t.In(c.loc))
	return since >= from && since < to
}

func (c *MarketClock) OpenOffset() time.Duration  { return c.open }
func (c *MarketClock) CloseOffset() time.Duration { return c.close }

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}
