package scheduler

import (
	"context"
	"time"

	"tradeloop/internal/logger"
)

// Controller is the lifecycle surface the autopilot drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// Autopilot starts the controller ahead of the session and stops it after
// the close on trading days. A manual stop inside the window is respected
// until the next trading day, and runs it did not start are left alone.
type Autopilot struct {
	Clock    *MarketClock
	Target   Controller
	StartAt  time.Duration // offset from local midnight
	StopAt   time.Duration
	Interval time.Duration

	lastStartDay string
	started      bool
}

func (a *Autopilot) Run(ctx context.Context) error {
	if a == nil || a.Clock == nil || a.Target == nil {
		return nil
	}
	interval := a.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Infof("Autopilot: started window=%s..%s tz=%s poll=%s",
		fmtOffset(a.StartAt), fmtOffset(a.StopAt), a.Clock.Location(), interval)
	for {
		a.Step(ctx, a.Clock.Now())
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("Autopilot: ctx done, exit")
			return nil
		case <-timer.C:
		}
	}
}

// Step applies the schedule once for the given instant.
func (a *Autopilot) Step(ctx context.Context, now time.Time) {
	day := a.Clock.TradingDay(now)
	inWindow := a.Clock.Within(now, a.StartAt, a.StopAt)
	running := a.Target.Running()
	if !running {
		// whatever run we started is over; a later manual run is not ours
		a.started = false
	}
	switch {
	case inWindow && !running && a.lastStartDay != day:
		a.lastStartDay = day
		if err := a.Target.Start(ctx); err != nil {
			logger.Errorf("Autopilot: start failed: %v", err)
			return
		}
		a.started = true
		logger.Infof("Autopilot: engine started for session %s", day)
	case !inWindow && running && a.started:
		if err := a.Target.Stop(); err != nil {
			logger.Warnf("Autopilot: stop failed: %v", err)
			return
		}
		a.started = false
		logger.Infof("Autopilot: engine stopped after session %s", day)
	}
}

func fmtOffset(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}
