package control

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"tradeloop/internal/engine"
	"tradeloop/internal/market"
	"tradeloop/internal/store"
)

type handlers struct {
	cfg    ServerConfig
	schema *jsonschema.Schema
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/bot/status", h.status)
	g.POST("/bot/start", h.start)
	g.POST("/bot/stop", h.stop)
	g.POST("/bot/config", h.updateConfig)
	g.GET("/bot/events", h.events)
	g.GET("/bot/equity", h.equity)
	g.GET("/bot/equity/chart", h.equityChart)
	g.GET("/trades", h.trades)
	g.GET("/positions", h.positions)
	g.GET("/account", h.account)
}

func (h *handlers) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.cfg.Timeout)
}

func queryLimit(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("limit", strconv.Itoa(def))))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

type settingsSummary struct {
	Strategies    []string           `json:"strategies"`
	Allocations   map[string]float64 `json:"allocations"`
	SymbolsCount  int                `json:"symbols_count"`
	MaxPositions  int                `json:"max_positions"`
	MaxDailyLoss  float64            `json:"max_daily_loss"`
	CheckInterval float64            `json:"check_interval"`
	MarketHours   bool               `json:"market_hours_only"`
}

func summarize(s engine.Settings) settingsSummary {
	out := settingsSummary{
		Allocations:   make(map[string]float64, len(s.Allocations)),
		SymbolsCount:  len(s.Symbols),
		MaxPositions:  s.Limits.MaxOpenPositions,
		MaxDailyLoss:  s.Limits.MaxDailyLoss,
		CheckInterval: s.CheckInterval.Seconds(),
		MarketHours:   s.MarketHoursOnly,
	}
	for tag, pct := range s.Allocations {
		out.Allocations[string(tag)] = pct
		if pct > 0 {
			out.Strategies = append(out.Strategies, string(tag))
		}
	}
	sort.Strings(out.Strategies)
	return out
}

func (h *handlers) status(c *gin.Context) {
	st := h.cfg.Engine.Status()
	c.JSON(http.StatusOK, gin.H{
		"running":  st.RunState != engine.Stopped,
		"state":    st,
		"win_rate": st.WinRate(),
		"config":   summarize(h.cfg.Engine.Settings()),
	})
}

func (h *handlers) start(c *gin.Context) {
	err := h.cfg.Engine.Start(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bot is already running"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to start bot: " + err.Error()})
		return
	}
	sum := summarize(h.cfg.Engine.Settings())
	c.JSON(http.StatusOK, gin.H{
		"message":       "Bot started successfully",
		"strategies":    sum.Strategies,
		"symbols_count": sum.SymbolsCount,
		"max_positions": sum.MaxPositions,
	})
}

func (h *handlers) stop(c *gin.Context) {
	if err := h.cfg.Engine.Stop(); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bot is not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop bot: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bot stopped successfully"})
}

func (h *handlers) events(c *gin.Context) {
	if h.cfg.Events == nil {
		c.JSON(http.StatusOK, gin.H{"events": []engine.Event{}})
		return
	}
	evs := h.cfg.Events.Events()
	limit := queryLimit(c, 100, 1000)
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		filtered := evs[:0:0]
		for _, ev := range evs {
			if string(ev.Type) == typ {
				filtered = append(filtered, ev)
			}
		}
		evs = filtered
	}
	if len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (h *handlers) trades(c *gin.Context) {
	q := store.TradeQuery{
		Symbol: market.NormalizeSymbol(c.Query("symbol")),
		Limit:  queryLimit(c, 100, 1000),
	}
	if since := strings.TrimSpace(c.Query("since")); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		q.Since = ts
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	rows, err := h.cfg.Trades.ListTrades(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []store.TradeRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "count": len(rows)})
}

func (h *handlers) positions(c *gin.Context) {
	if h.cfg.Broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Broker not connected"})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	positions, err := h.cfg.Broker.GetPositions(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (h *handlers) account(c *gin.Context) {
	if h.cfg.Broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Broker not connected"})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	eq, err := h.cfg.Broker.GetAccountEquity(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"broker": h.cfg.Broker.Name(), "equity": eq})
}
