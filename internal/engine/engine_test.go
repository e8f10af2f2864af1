package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/allocator"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/market"
	"tradeloop/internal/store"
	"tradeloop/internal/strategy"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.([]exchange.Position), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetAccountEquity(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockGateway) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	args := m.Called(ctx, symbol, timeframe, limit)
	if b := args.Get(0); b != nil {
		return b.([]market.Bar), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(exchange.OrderAck), args.Error(1)
}

type fakeLedger struct {
	mu   sync.Mutex
	recs []store.TradeRecord
	err  error
}

func (l *fakeLedger) AppendTrade(_ context.Context, rec store.TradeRecord) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	l.recs = append(l.recs, rec)
	return rec.Symbol, nil
}

func (l *fakeLedger) records() []store.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]store.TradeRecord(nil), l.recs...)
}

type fakeClock struct {
	now  time.Time
	open bool
}

func (c fakeClock) Now() time.Time              { return c.now }
func (c fakeClock) IsOpen(time.Time) bool       { return c.open }
func (c fakeClock) TradingDay(time.Time) string { return c.now.Format("2006-01-02") }

// movableClock can be moved forward while the loop is running.
type movableClock struct {
	mu   sync.Mutex
	now  time.Time
	open bool
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) IsOpen(time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *movableClock) TradingDay(t time.Time) string { return t.Format("2006-01-02") }

func (c *movableClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// dipBars returns 21 flat bars with the last close pulled to last, enough
// for the 20-bar mean reversion check.
func dipBars(last float64) []market.Bar {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	out := make([]market.Bar, 21)
	for i := range out {
		out[i] = market.Bar{Time: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000}
	}
	l := &out[len(out)-1]
	l.Open, l.High, l.Low, l.Close = last, last, last, last
	return out
}

func testSettings(symbols ...string) Settings {
	s := DefaultSettings()
	s.Symbols = symbols
	s.CheckInterval = time.Hour
	s.ErrorBackoff = 10 * time.Millisecond
	s.CallTimeout = time.Second
	s.Allocations = allocator.AllocationTable{strategy.TagMeanReversion: 50}
	return s
}

type harness struct {
	gw     *MockGateway
	ledger *fakeLedger
	sink   *MemorySink
	eng    *Engine
}

func newHarness(t *testing.T, settings Settings, open bool) *harness {
	t.Helper()
	return newHarnessWithClock(t, settings, fakeClock{now: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), open: open})
}

func newHarnessWithClock(t *testing.T, settings Settings, clock SessionClock) *harness {
	t.Helper()
	h := &harness{gw: new(MockGateway), ledger: &fakeLedger{}, sink: NewMemorySink(500)}
	eng, err := New(Deps{
		Gateway: h.gw,
		Ledger:  h.ledger,
		Clock:   clock,
		Sink:    h.sink,
	}, settings)
	require.NoError(t, err)
	h.eng = eng
	return h
}

// runTicks starts the engine, waits for n completed ticks and stops it.
func (h *harness) runTicks(t *testing.T, n int64) State {
	t.Helper()
	require.NoError(t, h.eng.Start(context.Background()))
	require.Eventually(t, func() bool { return h.eng.Status().Ticks >= n }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.eng.Stop())
	return h.eng.Status()
}

func messages(evs []Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Symbol+":"+ev.Message)
	}
	return out
}

func TestDailyLossPausesEntries(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(49400.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)

	st := h.runTicks(t, 1)

	assert.Equal(t, Stopped, st.RunState)
	assert.Equal(t, 50000.0, st.StartEquity)
	assert.InDelta(t, -600, st.DailyPnL, 1e-9)
	assert.Zero(t, st.TradesToday)
	h.gw.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
	assert.Len(t, h.sink.OfType(EventRiskPaused), 1)
	assert.Equal(t, []string{"AAA:risk_paused"}, messages(h.sink.OfType(EventOpportunityDiscarded)))
	assert.Empty(t, h.ledger.records())
}

func TestEntrySubmitsAndRecords(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, exchange.OrderRequest{Symbol: "AAA", Quantity: 5, Side: market.SideBuy}).
		Return(exchange.OrderAck{OrderID: "o-1", Status: "accepted", FilledPrice: 97.1}, nil).Once()

	st := h.runTicks(t, 1)

	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, 1, st.OpenPositions)
	recs := h.ledger.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "AAA", recs[0].Symbol)
	assert.Equal(t, string(strategy.TagMeanReversion), recs[0].StrategyTag)
	assert.Equal(t, 97.1, recs[0].Price)
	assert.Equal(t, "o-1", recs[0].OrderID)
	assert.Equal(t, st.LastTickID, recs[0].TickID)
	assert.Len(t, h.sink.OfType(EventOrderSubmitted), 1)
	h.gw.AssertExpectations(t)
}

func TestSlotCapAndHeldSymbols(t *testing.T) {
	s := testSettings("AAA", "BBB", "HHH")
	s.Limits.MaxOpenPositions = 2
	h := newHarness(t, s, true)
	held := []exchange.Position{{Symbol: "HHH", Side: exchange.PositionLong, Quantity: 1, EntryPrice: 10, CurrentPrice: 10}}
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return(held, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)
	h.gw.On("GetBars", mock.Anything, "BBB", "5m", mock.Anything).Return(dipBars(95), nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(r exchange.OrderRequest) bool { return r.Symbol == "BBB" })).
		Return(exchange.OrderAck{OrderID: "o-b"}, nil)

	st := h.runTicks(t, 1)

	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, 2, st.OpenPositions)
	h.gw.AssertNotCalled(t, "GetBars", mock.Anything, "HHH", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"AAA:no_slots"}, messages(h.sink.OfType(EventOpportunityDiscarded)))
}

func TestFailedOrderDoesNotConsumeSlot(t *testing.T) {
	s := testSettings("AAA", "BBB")
	s.Limits.MaxOpenPositions = 1
	h := newHarness(t, s, true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)
	h.gw.On("GetBars", mock.Anything, "BBB", "5m", mock.Anything).Return(dipBars(95), nil)
	rejected := exchange.NewOrderError(exchange.OrderErrRejected, "BBB", errors.New("halted"))
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(r exchange.OrderRequest) bool { return r.Symbol == "BBB" })).
		Return(exchange.OrderAck{}, rejected)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(r exchange.OrderRequest) bool { return r.Symbol == "AAA" })).
		Return(exchange.OrderAck{OrderID: "o-a"}, nil)

	st := h.runTicks(t, 1)

	assert.Equal(t, 1, st.TradesToday)
	recs := h.ledger.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "AAA", recs[0].Symbol)
	failed := h.sink.OfType(EventOrderFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "BBB", failed[0].Symbol)
	assert.Equal(t, "rejected", failed[0].Fields["kind"])
}

func TestLedgerFailureStillCountsTrade(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), true)
	h.ledger.err = errors.New("disk full")
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.OrderAck{OrderID: "o-1"}, nil)

	st := h.runTicks(t, 1)

	assert.Equal(t, 1, st.TradesToday)
	assert.Len(t, h.sink.OfType(EventLedgerFailed), 1)
}

func TestExitsRunWhilePaused(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), true)
	losing := exchange.Position{Symbol: "XYZ", Side: exchange.PositionLong, Quantity: 4,
		EntryPrice: 100, CurrentPrice: 97, UnrealizedPnLPct: -0.03, UnrealizedPnL: -12}
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(49000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{losing}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(100), nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, exchange.OrderRequest{Symbol: "XYZ", Quantity: 4, Side: market.SideSell, ReduceOnly: true}).
		Return(exchange.OrderAck{OrderID: "x-1"}, nil).Once()

	st := h.runTicks(t, 1)

	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, 1, st.Losses)
	assert.Len(t, h.sink.OfType(EventRiskPaused), 1)
	recs := h.ledger.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "stop_loss", recs[0].StrategyTag)
	h.gw.AssertExpectations(t)
}

func TestMarketClosedSkipsEntries(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), false)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)

	h.runTicks(t, 1)

	h.gw.AssertNotCalled(t, "GetBars", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, h.sink.OfType(EventMarketClosed), 1)
}

func TestExtendedHoursOrders(t *testing.T) {
	s := testSettings("AAA")
	s.MarketHoursOnly = false
	h := newHarness(t, s, false)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(r exchange.OrderRequest) bool { return r.ExtendedHours })).
		Return(exchange.OrderAck{OrderID: "o-1"}, nil).Once()

	h.runTicks(t, 1)

	recs := h.ledger.records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].ExtendedHours)
	h.gw.AssertExpectations(t)
}

func TestEquityUnavailableSuppressesEntries(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(0.0, errors.New("timeout"))
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)

	st := h.runTicks(t, 1)

	assert.True(t, st.EquityStale)
	assert.Equal(t, 50000.0, st.Equity)
	assert.Len(t, h.sink.OfType(EventEquityUnavailable), 1)
	h.gw.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
}

func TestShortHistoryIsSkipped(t *testing.T) {
	h := newHarness(t, testSettings("AAA", "BBB"), true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97)[:5], nil)
	h.gw.On("GetBars", mock.Anything, "BBB", "5m", mock.Anything).Return(nil, errors.New("unknown symbol"))

	st := h.runTicks(t, 1)

	assert.Zero(t, st.TradesToday)
	skipped := h.sink.OfType(EventSymbolSkipped)
	require.Len(t, skipped, 2)
	syms := []string{skipped[0].Symbol, skipped[1].Symbol}
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, syms)
}

func TestTickErrorAndPanicContinue(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), false)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return(nil, errors.New("502")).Once()
	h.gw.On("GetPositions", mock.Anything).Run(func(mock.Arguments) { panic("boom") }).Return(nil, nil).Once()
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)

	st := h.runTicks(t, 1)

	assert.Empty(t, st.LastError)
	failed := h.sink.OfType(EventTickFailed)
	require.Len(t, failed, 2)
	assert.Contains(t, failed[0].Message, "502")
	assert.Contains(t, failed[1].Message, "boom")
}

func TestLifecycleErrors(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), false)
	h.gw.On("GetAccountEquity", mock.Anything).Return(0.0, errors.New("auth")).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(1000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)

	assert.ErrorIs(t, h.eng.Stop(), ErrNotRunning)
	require.Error(t, h.eng.Start(context.Background()))
	assert.False(t, h.eng.Running())

	require.NoError(t, h.eng.Start(context.Background()))
	assert.True(t, h.eng.Running())
	assert.ErrorIs(t, h.eng.Start(context.Background()), ErrAlreadyRunning)
	assert.ErrorIs(t, h.eng.Reconfigure(testSettings("ZZZ")), ErrEngineRunning)

	require.NoError(t, h.eng.Stop())
	assert.False(t, h.eng.Running())
	require.NoError(t, h.eng.Reconfigure(testSettings("ZZZ")))
	assert.Equal(t, []string{"ZZZ"}, h.eng.Settings().Symbols)
	assert.Len(t, h.sink.OfType(EventEngineStarted), 1)
	assert.Len(t, h.sink.OfType(EventEngineStopped), 1)
}

func TestStatusIsSnapshot(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), false)
	h.gw.On("GetAccountEquity", mock.Anything).Return(1000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)

	before := h.eng.Status()
	h.runTicks(t, 1)
	assert.Equal(t, Stopped, before.RunState)
	assert.Zero(t, before.Ticks)
	assert.Equal(t, int64(1), h.eng.Status().Ticks)
}

func TestRejectsInvalidSettings(t *testing.T) {
	s := testSettings()
	_, err := New(Deps{Gateway: new(MockGateway), Ledger: &fakeLedger{}, Clock: fakeClock{}}, s)
	require.Error(t, err)

	s = testSettings("AAA")
	s.Allocations = allocator.AllocationTable{strategy.TagMomentum: 70, strategy.TagRSI: 40}
	assert.Error(t, s.Validate())
}

func indexOf(evs []Event, typ EventType) int {
	for i, ev := range evs {
		if ev.Type == typ {
			return i
		}
	}
	return -1
}

func TestRestartSameDayKeepsDailyLoss(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(49400.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)

	st := h.runTicks(t, 1)
	require.InDelta(t, -600, st.DailyPnL, 1e-9)

	require.NoError(t, h.eng.Start(context.Background()))
	assert.Equal(t, Paused, h.eng.Status().RunState)
	require.Eventually(t, func() bool { return h.eng.Status().Ticks >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.eng.Stop())

	st = h.eng.Status()
	assert.Equal(t, 50000.0, st.StartEquity)
	assert.InDelta(t, -600, st.DailyPnL, 1e-9)
	assert.Zero(t, st.TradesToday)
	assert.Len(t, h.sink.OfType(EventRiskPaused), 2)
	assert.Empty(t, h.sink.OfType(EventRiskResumed))
	h.gw.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
	assert.Empty(t, h.ledger.records())
}

func TestRestartSameDayKeepsCounters(t *testing.T) {
	h := newHarness(t, testSettings("AAA"), false)
	losing := exchange.Position{Symbol: "XYZ", Side: exchange.PositionLong, Quantity: 2,
		EntryPrice: 100, CurrentPrice: 97, UnrealizedPnLPct: -0.03}
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{losing}, nil).Once()
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.OrderAck{OrderID: "x-1"}, nil).Once()

	h.runTicks(t, 1)
	st := h.runTicks(t, 1)

	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, 1, st.Losses)
	assert.Equal(t, 50000.0, st.StartEquity)
}

func TestPausedRecoversWhenLossShrinks(t *testing.T) {
	s := testSettings("AAA")
	s.CheckInterval = 20 * time.Millisecond
	h := newHarness(t, s, true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(49400.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(49800.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97), nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.OrderAck{OrderID: "o-1"}, nil)

	require.NoError(t, h.eng.Start(context.Background()))
	require.Eventually(t, func() bool { return len(h.sink.OfType(EventOrderSubmitted)) >= 1 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.eng.Stop())

	paused := h.sink.OfType(EventRiskPaused)
	resumed := h.sink.OfType(EventRiskResumed)
	require.Len(t, paused, 1)
	require.Len(t, resumed, 1)
	assert.InDelta(t, -200, resumed[0].Fields["daily_pnl"], 1e-9)

	evs := h.sink.Events()
	assert.Less(t, indexOf(evs, EventRiskPaused), indexOf(evs, EventRiskResumed))
	assert.Less(t, indexOf(evs, EventRiskResumed), indexOf(evs, EventOrderSubmitted))
	assert.NotEqual(t, paused[0].TickID, h.sink.OfType(EventOrderSubmitted)[0].TickID)
	assert.Equal(t, []string{"AAA:risk_paused"}, messages(h.sink.OfType(EventOpportunityDiscarded)))
}

func TestDayRolloverResetsCounters(t *testing.T) {
	s := testSettings("AAA")
	s.CheckInterval = 20 * time.Millisecond
	clock := &movableClock{now: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	h := newHarnessWithClock(t, s, clock)
	losing := exchange.Position{Symbol: "XYZ", Side: exchange.PositionLong, Quantity: 2,
		EntryPrice: 100, CurrentPrice: 97, UnrealizedPnLPct: -0.03}
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil).Once()
	h.gw.On("GetAccountEquity", mock.Anything).Return(49400.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{losing}, nil).Once()
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	h.gw.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.OrderAck{OrderID: "x-1"}, nil).Once()

	require.NoError(t, h.eng.Start(context.Background()))
	require.Eventually(t, func() bool { return h.eng.Status().RunState == Paused }, 2*time.Second, 5*time.Millisecond)
	before := h.eng.Status()
	assert.Equal(t, 1, before.TradesToday)
	assert.Equal(t, 1, before.Losses)

	clock.set(time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC))
	require.Eventually(t, func() bool { return h.eng.Status().TradingDay == "2026-03-03" }, 2*time.Second, 5*time.Millisecond)
	after := h.eng.Status()
	require.NoError(t, h.eng.Stop())

	assert.Equal(t, Running, after.RunState)
	assert.Equal(t, 49400.0, after.StartEquity)
	assert.Zero(t, after.DailyPnL)
	assert.Zero(t, after.TradesToday)
	assert.Zero(t, after.Wins)
	assert.Zero(t, after.Losses)
	rolls := h.sink.OfType(EventDayRollover)
	require.Len(t, rolls, 1)
	assert.Equal(t, "2026-03-02", rolls[0].Fields["from"])
	assert.Equal(t, "2026-03-03", rolls[0].Fields["to"])
}

func TestPartialHistorySubmitsNothing(t *testing.T) {
	s := testSettings("AAA")
	s.Allocations = allocator.AllocationTable{strategy.TagMeanReversion: 50, strategy.TagRSI: 15}
	h := newHarness(t, s, true)
	h.gw.On("GetAccountEquity", mock.Anything).Return(50000.0, nil)
	h.gw.On("GetPositions", mock.Anything).Return([]exchange.Position{}, nil)
	// 16 bars: enough for RSI(14), short of the 20-bar mean reversion window
	h.gw.On("GetBars", mock.Anything, "AAA", "5m", mock.Anything).Return(dipBars(97)[5:], nil)

	st := h.runTicks(t, 1)

	assert.Zero(t, st.TradesToday)
	h.gw.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
	skipped := h.sink.OfType(EventSymbolSkipped)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Message, "short history")
}
