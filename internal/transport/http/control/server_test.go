package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/config"
	"tradeloop/internal/engine"
	"tradeloop/internal/store"
	"tradeloop/internal/store/equity"
	"tradeloop/internal/strategy"
)

type fakeEngine struct {
	mu       sync.Mutex
	running  bool
	startErr error
	settings engine.Settings
}

func (f *fakeEngine) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return engine.ErrAlreadyRunning
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return engine.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeEngine) Status() engine.State {
	if f.Running() {
		return engine.State{RunState: engine.Running}
	}
	return engine.State{RunState: engine.Stopped}
}

func (f *fakeEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) Settings() engine.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeEngine) Reconfigure(s engine.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return engine.ErrEngineRunning
	}
	f.settings = s
	return nil
}

type MockTrades struct {
	mock.Mock
}

func (m *MockTrades) ListTrades(ctx context.Context, q store.TradeQuery) ([]store.TradeRecord, error) {
	args := m.Called(ctx, q)
	if rows := args.Get(0); rows != nil {
		return rows.([]store.TradeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type staticEquity []equity.Snapshot

func (s staticEquity) Recent(context.Context, int) ([]equity.Snapshot, error) { return s, nil }

type fixture struct {
	eng    *fakeEngine
	trades *MockTrades
	mgr    *config.Manager
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading:\n  symbols: [AAPL, MSFT]\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	f := &fixture{
		eng:    &fakeEngine{settings: cfg.EngineSettings()},
		trades: new(MockTrades),
		mgr:    config.NewManager(cfg),
	}
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	srv, err := NewServer(ServerConfig{
		Engine: f.eng,
		Trades: f.trades,
		Equity: staticEquity{
			{Time: base, Equity: 50000},
			{Time: base.Add(time.Minute), Equity: 49900, DailyPnL: -100},
		},
		Config: f.mgr,
	})
	require.NoError(t, err)
	f.srv = srv
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/api/bot/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["running"])
	cfg := body["config"].(map[string]any)
	assert.Equal(t, 2.0, cfg["symbols_count"])
	assert.Equal(t, 5.0, cfg["max_positions"])
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodPost, "/api/bot/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot started successfully", body["message"])

	rec, body = f.do(t, http.MethodPost, "/api/bot/start", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Bot is already running", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/api/bot/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body = f.do(t, http.MethodPost, "/api/bot/stop", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Bot is not running", body["error"])
}

func TestStartGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.eng.startErr = errors.New("broker unreachable")
	rec, body := f.do(t, http.MethodPost, "/api/bot/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "broker unreachable")
}

func TestConfigRejectedWhileRunning(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.Start(context.Background()))
	rec, body := f.do(t, http.MethodPost, "/api/bot/config", `{"strategy":"rsi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Stop the bot before changing configuration", body["error"])
}

func TestConfigBodyValidation(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"symbols":`,
		"array":            `[1,2]`,
		"empty object":     `{}`,
		"unknown field":    `{"leverage": 10}`,
		"unknown strategy": `{"strategy":"breakout"}`,
		"bad stop loss":    `{"risk":{"stop_loss_pct": 2}}`,
		"allocation sum":   `{"strategy_allocations":{"momentum":60,"rsi":60}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			rec, _ := f.do(t, http.MethodPost, "/api/bot/config", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestConfigUpdatePersistsAndReconfigures(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodPost, "/api/bot/config",
		`{"strategy":"momentum","symbols":["NVDA","AMD","TSLA"],"risk":{"max_daily_loss":250}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Configuration updated", body["message"])

	s := f.eng.Settings()
	assert.Equal(t, []string{"NVDA", "AMD", "TSLA"}, s.Symbols)
	assert.Equal(t, 100.0, s.Allocations[strategy.TagMomentum])
	assert.Len(t, s.Allocations, 1)
	assert.Equal(t, 250.0, s.Limits.MaxDailyLoss)

	reloaded, err := config.Load(f.mgr.Current().Files()[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AMD", "TSLA"}, reloaded.Trading.Symbols)
	assert.Equal(t, 250.0, reloaded.Risk.MaxDailyLoss)
}

func TestTradesQuery(t *testing.T) {
	f := newFixture(t)
	rows := []store.TradeRecord{{ID: "01", Symbol: "AAPL", Side: "buy", Quantity: 5, Price: 97}}
	f.trades.On("ListTrades", mock.Anything, store.TradeQuery{Symbol: "AAPL", Limit: 10}).Return(rows, nil).Once()

	rec, body := f.do(t, http.MethodGet, "/api/trades?symbol=aapl&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])
	f.trades.AssertExpectations(t)

	rec, _ = f.do(t, http.MethodGet, "/api/trades?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEquityEndpoints(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/api/bot/equity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["history"], 2)

	rec, _ = f.do(t, http.MethodGet, "/api/bot/equity/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestBrokerViewsNeedBroker(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/api/positions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/account", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
