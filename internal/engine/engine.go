package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"
	"tradeloop/internal/store"
	"tradeloop/internal/store/equity"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
	ErrEngineRunning  = errors.New("stop the engine before changing configuration")
)

// TradeRecorder appends acknowledged orders to the ledger.
type TradeRecorder interface {
	AppendTrade(ctx context.Context, rec store.TradeRecord) (string, error)
}

// EquityRecorder stores one account snapshot per tick.
type EquityRecorder interface {
	Record(ctx context.Context, snap equity.Snapshot) error
}

// SessionClock answers market-hours questions in the exchange timezone.
type SessionClock interface {
	Now() time.Time
	IsOpen(t time.Time) bool
	TradingDay(t time.Time) string
}

type Deps struct {
	Gateway exchange.Gateway
	Ledger  TradeRecorder
	Equity  EquityRecorder // optional
	Clock   SessionClock
	Sink    EventSink // optional
}

type runHandle struct {
	stop chan struct{}
	done chan struct{}
}

// Engine drives the periodic decision loop. Start, Stop and Reconfigure are
// serialized; Status reads a published snapshot and never blocks.
type Engine struct {
	gw     exchange.Gateway
	ledger TradeRecorder
	equity EquityRecorder
	clock  SessionClock
	sink   EventSink

	// baseCtx bounds every loop call. Stop does not cancel it, so an
	// in-flight tick finishes; process shutdown does.
	baseCtx context.Context

	mu       sync.Mutex
	settings Settings
	run      *runHandle

	snapshot atomic.Value // State
}

func New(deps Deps, settings Settings) (*Engine, error) {
	if deps.Gateway == nil {
		return nil, errors.New("engine needs a gateway")
	}
	if deps.Ledger == nil {
		return nil, errors.New("engine needs a trade ledger")
	}
	if deps.Clock == nil {
		return nil, errors.New("engine needs a session clock")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine settings: %w", err)
	}
	sink := deps.Sink
	if sink == nil {
		sink = LogSink{}
	}
	e := &Engine{
		gw:       deps.Gateway,
		ledger:   deps.Ledger,
		equity:   deps.Equity,
		clock:    deps.Clock,
		sink:     sink,
		baseCtx:  context.Background(),
		settings: settings,
	}
	e.snapshot.Store(State{RunState: Stopped})
	return e, nil
}

// BindContext sets the context that bounds loop calls. It must be called
// before the first Start.
func (e *Engine) BindContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()
}

// Start captures the day's starting equity and launches the loop. A restart
// within the same trading day keeps that day's starting equity, so the run
// begins Paused when the daily loss limit is still breached. The first tick
// runs immediately. ctx bounds only the startup calls.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil {
		return ErrAlreadyRunning
	}
	settings := e.settings
	r, err := newRunner(e, settings)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, settings.CallTimeout)
	eq, err := e.gw.GetAccountEquity(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch start equity: %w", err)
	}

	now := e.clock.Now()
	day := e.clock.TradingDay(now)
	prev := e.Status()
	st := State{RunState: Running, StartedAt: now}
	if prev.TradingDay == day {
		// same day: baseline and counters carry over
		st.TradingDay, st.StartEquity = day, prev.StartEquity
		st.TradesToday, st.Wins, st.Losses = prev.TradesToday, prev.Wins, prev.Losses
		st.Equity, st.DailyPnL = eq, eq-prev.StartEquity
	} else {
		st.resetDay(day, eq)
	}
	r.state = st
	r.applyGuard("")
	st = r.state
	e.publish(st)

	h := &runHandle{stop: make(chan struct{}), done: make(chan struct{})}
	e.run = h
	go r.loop(e.baseCtx, h)

	e.emit(Event{Type: EventEngineStarted, Fields: map[string]any{
		"gateway":      e.gw.Name(),
		"symbols":      len(settings.Symbols),
		"start_equity": st.StartEquity,
		"run_state":    string(st.RunState),
	}})
	return nil
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.run
	if h == nil {
		return ErrNotRunning
	}
	close(h.stop)
	<-h.done
	e.run = nil

	st := e.Status()
	st.RunState = Stopped
	e.publish(st)
	e.emit(Event{Type: EventEngineStopped, Fields: map[string]any{
		"trades_today": st.TradesToday,
		"daily_pnl":    st.DailyPnL,
	}})
	return nil
}

// Status returns the latest published snapshot.
func (e *Engine) Status() State {
	return e.snapshot.Load().(State)
}

func (e *Engine) Running() bool {
	return e.Status().RunState != Stopped
}

// Reconfigure replaces the settings used by the next Start.
func (e *Engine) Reconfigure(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil {
		return ErrEngineRunning
	}
	e.settings = s
	return nil
}

func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

func (e *Engine) publish(st State) {
	e.snapshot.Store(st)
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.clock.Now()
	}
	e.sink.Emit(ev)
}

func (r *runner) loop(ctx context.Context, h *runHandle) {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			logger.Infof("engine: context done, loop exit")
			return
		default:
		}
		wait := r.settings.CheckInterval
		if err := r.safeTick(ctx); err != nil {
			if r.settings.ErrorBackoff > 0 {
				wait = r.settings.ErrorBackoff
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-h.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("engine: context done, loop exit")
			return
		case <-timer.C:
		}
	}
}

// safeTick turns a panic anywhere in the tick into a tick error.
func (r *runner) safeTick(ctx context.Context) (err error) {
	tickID := newTickID()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tick panic: %v", rec)
			logger.Errorf("engine: tick %s panic: %v\n%s", tickID, rec, debug.Stack())
		}
		if err != nil {
			r.state.LastError = err.Error()
			r.state.LastTickID = tickID
			r.eng.publish(r.state)
			r.eng.emit(Event{Type: EventTickFailed, TickID: tickID, Message: err.Error()})
		}
	}()
	return r.tick(ctx, tickID)
}
