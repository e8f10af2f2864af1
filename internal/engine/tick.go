package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradeloop/internal/allocator"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"
	"tradeloop/internal/market"
	"tradeloop/internal/risk"
	"tradeloop/internal/store"
	"tradeloop/internal/store/equity"
	"tradeloop/internal/strategy"
)

// runner owns the mutable loop state of one run. Only the loop goroutine
// touches it; readers see copies through Engine.publish.
type runner struct {
	eng      *Engine
	settings Settings
	symbols  []string

	registry *strategy.Registry
	alloc    *allocator.Allocator
	monitor  *risk.Monitor
	guard    risk.DailyLossGuard

	state State
}

func newRunner(e *Engine, s Settings) (*runner, error) {
	reg, err := strategy.BuildRegistry(s.Params, s.Allocations)
	if err != nil {
		return nil, fmt.Errorf("build strategies: %w", err)
	}
	symbols := make([]string, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		symbols = append(symbols, market.NormalizeSymbol(sym))
	}
	return &runner{
		eng:      e,
		settings: s,
		symbols:  symbols,
		registry: reg,
		alloc: allocator.New(allocator.Settings{
			MaxPositionValue: s.Limits.MaxPositionValue,
			MaxOpenPositions: s.Limits.MaxOpenPositions,
			LotSize:          s.LotSize,
			SizingFactor:     s.SizingFactor,
			Allocations:      s.Allocations,
		}),
		monitor: risk.NewMonitor(s.Limits),
		guard:   risk.NewDailyLossGuard(s.Limits.MaxDailyLoss),
	}, nil
}

func newTickID() string {
	return uuid.NewString()
}

func (r *runner) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.settings.CallTimeout)
}

func (r *runner) emit(ev Event) {
	r.eng.emit(ev)
}

func (r *runner) tick(ctx context.Context, tickID string) error {
	eng := r.eng
	now := eng.clock.Now()
	r.emit(Event{Type: EventTickStarted, TickID: tickID})

	cctx, cancel := r.call(ctx)
	positions, err := eng.gw.GetPositions(cctx)
	cancel()
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	cctx, cancel = r.call(ctx)
	eq, eqErr := eng.gw.GetAccountEquity(cctx)
	cancel()
	if eqErr != nil {
		r.state.EquityStale = true
		r.emit(Event{Type: EventEquityUnavailable, TickID: tickID, Message: eqErr.Error()})
	} else {
		r.state.EquityStale = false
		if day := eng.clock.TradingDay(now); day != r.state.TradingDay {
			prevDay := r.state.TradingDay
			r.state.resetDay(day, eq)
			if r.state.RunState == Paused {
				r.state.RunState = Running
			}
			r.emit(Event{Type: EventDayRollover, TickID: tickID, Fields: map[string]any{
				"from": prevDay, "to": day, "start_equity": eq,
			}})
		}
		r.state.Equity = eq
		r.state.DailyPnL = eq - r.state.StartEquity
		r.applyGuard(tickID)
	}
	r.state.OpenPositions = len(positions)

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[market.NormalizeSymbol(p.Symbol)] = true
	}

	r.runExits(ctx, tickID, positions)

	marketOpen := eng.clock.IsOpen(now)
	switch {
	case r.settings.MarketHoursOnly && !marketOpen:
		r.emit(Event{Type: EventMarketClosed, TickID: tickID})
	case r.state.EquityStale:
		logger.Debugf("engine: tick %s skips entries, equity unknown", tickID)
	default:
		r.runEntries(ctx, tickID, held, len(positions), !marketOpen)
	}

	if eng.equity != nil && !r.state.EquityStale {
		cctx, cancel = r.call(ctx)
		err := eng.equity.Record(cctx, equity.Snapshot{
			Time:          now,
			Equity:        r.state.Equity,
			DailyPnL:      r.state.DailyPnL,
			RunState:      string(r.state.RunState),
			OpenPositions: r.state.OpenPositions,
		})
		cancel()
		if err != nil {
			logger.Warnf("engine: record equity: %v", err)
		}
	}

	r.state.Ticks++
	r.state.LastTickAt = now
	r.state.LastTickID = tickID
	r.state.LastError = ""
	eng.publish(r.state)
	r.emit(Event{Type: EventTickCompleted, TickID: tickID, Fields: map[string]any{
		"equity":         r.state.Equity,
		"daily_pnl":      r.state.DailyPnL,
		"open_positions": r.state.OpenPositions,
		"trades_today":   r.state.TradesToday,
		"run_state":      string(r.state.RunState),
	}})
	return nil
}

// applyGuard moves between Running and Paused on the daily loss limit.
func (r *runner) applyGuard(tickID string) {
	breached := r.guard.Breached(r.state.DailyPnL)
	fields := map[string]any{
		"daily_pnl":      r.state.DailyPnL,
		"max_daily_loss": r.settings.Limits.MaxDailyLoss,
	}
	switch {
	case breached && r.state.RunState == Running:
		r.state.RunState = Paused
		r.emit(Event{Type: EventRiskPaused, TickID: tickID, Fields: fields})
	case !breached && r.state.RunState == Paused:
		r.state.RunState = Running
		r.emit(Event{Type: EventRiskResumed, TickID: tickID, Fields: fields})
	}
}

// runExits closes positions past their stop or target. It runs while paused.
func (r *runner) runExits(ctx context.Context, tickID string, positions []exchange.Position) {
	for _, ex := range r.monitor.Scan(positions) {
		sym := market.NormalizeSymbol(ex.Position.Symbol)
		cctx, cancel := r.call(ctx)
		ack, err := r.eng.gw.PlaceMarketOrder(cctx, exchange.OrderRequest{
			Symbol:     sym,
			Quantity:   ex.Quantity,
			Side:       ex.Side,
			ReduceOnly: true,
		})
		cancel()
		if err != nil {
			r.orderFailed(tickID, sym, string(ex.Reason), err)
			continue
		}
		if ex.Position.UnrealizedPnLPct > 0 {
			r.state.Wins++
		} else {
			r.state.Losses++
		}
		r.state.TradesToday++
		price := ack.FilledPrice
		if price <= 0 {
			price = ex.Position.CurrentPrice
		}
		r.record(ctx, tickID, store.TradeRecord{
			Symbol:      sym,
			Side:        string(ex.Side),
			Quantity:    ex.Quantity,
			Price:       price,
			StrategyTag: string(ex.Reason),
			OrderID:     ack.OrderID,
			Status:      ack.Status,
			Reason:      fmt.Sprintf("%s at %.2f%%", ex.Reason, ex.Position.UnrealizedPnLPct*100),
			Meta: map[string]any{
				"entry_price": ex.Position.EntryPrice,
				"pnl_pct":     ex.Position.UnrealizedPnLPct,
				"pnl":         ex.Position.UnrealizedPnL,
			},
		})
		r.emit(Event{Type: EventPositionExit, TickID: tickID, Symbol: sym, Strategy: string(ex.Reason), Fields: map[string]any{
			"quantity": ex.Quantity,
			"pnl_pct":  ex.Position.UnrealizedPnLPct,
			"order_id": ack.OrderID,
		}})
	}
}

func (r *runner) runEntries(ctx context.Context, tickID string, held map[string]bool, openCount int, extended bool) {
	opps := r.scan(ctx, tickID, held)
	if len(opps) == 0 {
		return
	}
	if r.state.RunState == Paused {
		for _, opp := range opps {
			r.emit(Event{Type: EventOpportunityDiscarded, TickID: tickID, Symbol: opp.Symbol,
				Strategy: string(opp.Tag), Message: "risk_paused"})
		}
		return
	}
	submit := func(o allocator.Order) bool {
		opp := o.Opportunity
		cctx, cancel := r.call(ctx)
		ack, err := r.eng.gw.PlaceMarketOrder(cctx, exchange.OrderRequest{
			Symbol:        opp.Symbol,
			Quantity:      o.Quantity,
			Side:          opp.Side,
			ExtendedHours: extended,
		})
		cancel()
		if err != nil {
			r.orderFailed(tickID, opp.Symbol, string(opp.Tag), err)
			return false
		}
		r.state.TradesToday++
		price := ack.FilledPrice
		if price <= 0 {
			price = opp.ReferencePrice
		}
		r.record(ctx, tickID, store.TradeRecord{
			Symbol:        opp.Symbol,
			Side:          string(opp.Side),
			Quantity:      o.Quantity,
			Price:         price,
			StrategyTag:   string(opp.Tag),
			OrderID:       ack.OrderID,
			Status:        ack.Status,
			Reason:        opp.Reason,
			ExtendedHours: extended,
			Meta: map[string]any{
				"strength":        opp.Strength,
				"reference_price": opp.ReferencePrice,
				"position_value":  o.PositionValue,
			},
		})
		r.emit(Event{Type: EventOrderSubmitted, TickID: tickID, Symbol: opp.Symbol, Strategy: string(opp.Tag), Fields: map[string]any{
			"quantity": o.Quantity,
			"side":     string(opp.Side),
			"order_id": ack.OrderID,
			"extended": extended,
		}})
		return true
	}
	res := r.alloc.Allocate(opps, held, openCount, submit)
	for _, d := range res.Discarded {
		if d.Reason == allocator.DiscardRejected {
			continue // already reported as order_failed
		}
		r.emit(Event{Type: EventOpportunityDiscarded, TickID: tickID, Symbol: d.Opportunity.Symbol,
			Strategy: string(d.Opportunity.Tag), Message: string(d.Reason)})
	}
	r.state.OpenPositions = openCount + len(res.Accepted)
}

// scan fetches bars for every unheld symbol in parallel and collects the
// opportunities in configured symbol order.
func (r *runner) scan(ctx context.Context, tickID string, held map[string]bool) []strategy.Opportunity {
	candidates := make([]string, 0, len(r.symbols))
	for _, sym := range r.symbols {
		if !held[sym] {
			candidates = append(candidates, sym)
		}
	}
	need := r.registry.MaxBars()
	limit := r.settings.BarLimit
	if limit < need {
		limit = need
	}

	results := make([][]strategy.Opportunity, len(candidates))
	var mu sync.Mutex
	skip := func(sym, msg string) {
		mu.Lock()
		defer mu.Unlock()
		r.emit(Event{Type: EventSymbolSkipped, TickID: tickID, Symbol: sym, Message: msg})
	}
	var g errgroup.Group
	if n := r.settings.FetchConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, sym := range candidates {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					skip(sym, fmt.Sprintf("panic: %v", rec))
				}
			}()
			cctx, cancel := r.call(ctx)
			bars, err := r.eng.gw.GetBars(cctx, sym, r.settings.Timeframe, limit)
			cancel()
			if err != nil {
				skip(sym, "bars: "+err.Error())
				return nil
			}
			if len(bars) == 0 {
				skip(sym, "no bars")
				return nil
			}
			if len(bars) < need {
				skip(sym, fmt.Sprintf("short history: %d of %d bars", len(bars), need))
				return nil
			}
			results[i] = r.registry.EvaluateAll(sym, bars, func(tag strategy.Tag, rec any) {
				logger.Errorf("engine: strategy %s panicked on %s: %v", tag, sym, rec)
			})
			return nil
		})
	}
	_ = g.Wait()

	var out []strategy.Opportunity
	for _, opps := range results {
		out = append(out, opps...)
	}
	return out
}

func (r *runner) orderFailed(tickID, symbol, tag string, err error) {
	fields := map[string]any{"kind": string(exchange.OrderErrUnknown)}
	if oe, ok := exchange.IsOrderError(err); ok {
		fields["kind"] = string(oe.Kind)
	}
	r.emit(Event{Type: EventOrderFailed, TickID: tickID, Symbol: symbol, Strategy: tag,
		Message: err.Error(), Fields: fields})
}

// record appends to the ledger. A ledger failure never undoes the order.
func (r *runner) record(ctx context.Context, tickID string, rec store.TradeRecord) {
	rec.TickID = tickID
	cctx, cancel := r.call(ctx)
	defer cancel()
	if _, err := r.eng.ledger.AppendTrade(cctx, rec); err != nil {
		r.emit(Event{Type: EventLedgerFailed, TickID: tickID, Symbol: rec.Symbol,
			Strategy: rec.StrategyTag, Message: err.Error()})
	}
}
