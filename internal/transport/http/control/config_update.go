package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"tradeloop/internal/config"
	"tradeloop/internal/engine"
	"tradeloop/internal/logger"
)

const maxConfigBody = 64 << 10

const updateSchema = `{
  "type": "object",
  "additionalProperties": false,
  "minProperties": 1,
  "properties": {
    "strategy": {"enum": ["momentum", "mean_reversion", "rsi", "vwap", "ma_crossover"]},
    "symbols": {
      "type": "array", "minItems": 1, "uniqueItems": true,
      "items": {"type": "string", "minLength": 1, "maxLength": 32}
    },
    "strategy_allocations": {
      "type": "object",
      "propertyNames": {"enum": ["momentum", "mean_reversion", "rsi", "vwap", "ma_crossover"]},
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 100}
    },
    "check_interval": {"type": "integer", "minimum": 1},
    "market_hours_only": {"type": "boolean"},
    "risk": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_position_value": {"type": "number", "exclusiveMinimum": 0},
        "max_open_positions": {"type": "integer", "minimum": 1},
        "max_daily_loss": {"type": "number", "exclusiveMinimum": 0},
        "stop_loss_pct": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
        "take_profit_pct": {"type": "number", "exclusiveMinimum": 0}
      }
    }
  }
}`

func compileUpdateSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("config_update.json", updateSchema)
}

type configUpdate struct {
	// Strategy routes the whole allocation to one strategy.
	Strategy            string               `json:"strategy"`
	Symbols             []string             `json:"symbols"`
	StrategyAllocations map[string]float64   `json:"strategy_allocations"`
	CheckInterval       *int                 `json:"check_interval"`
	MarketHoursOnly     *bool                `json:"market_hours_only"`
	Risk                *config.RiskOverride `json:"risk"`
}

func (u configUpdate) override() config.Override {
	var o config.Override
	if u.Symbols != nil || u.StrategyAllocations != nil || u.Strategy != "" ||
		u.CheckInterval != nil || u.MarketHoursOnly != nil {
		t := &config.TradingOverride{
			Symbols:             u.Symbols,
			StrategyAllocations: u.StrategyAllocations,
			CheckInterval:       u.CheckInterval,
			MarketHoursOnly:     u.MarketHoursOnly,
		}
		if u.Strategy != "" && t.StrategyAllocations == nil {
			t.StrategyAllocations = map[string]float64{u.Strategy: 100}
		}
		o.Trading = t
	}
	o.Risk = u.Risk
	return o
}

func (h *handlers) updateConfig(c *gin.Context) {
	if h.cfg.Config == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "configuration updates are disabled"})
		return
	}
	if h.cfg.Engine.Running() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stop the bot before changing configuration"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.schema.Validate(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": schemaMessage(err)})
		return
	}
	var upd configUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o := upd.override()
	next, err := h.cfg.Config.Preview(o)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings := next.EngineSettings()
	if err := h.cfg.Engine.Reconfigure(settings); err != nil {
		if errors.Is(err, engine.ErrEngineRunning) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stop the bot before changing configuration"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cfg.Config.Commit(o, next); err != nil {
		logger.Errorf("config update applied but not persisted: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update config: " + err.Error()})
		return
	}
	logger.Infof("config updated via api: %s", gjson.GetBytes(body, "@ugly").Raw)
	c.JSON(http.StatusOK, gin.H{
		"message": "Configuration updated",
		"config":  summarize(settings),
	})
}

// schemaMessage flattens a validation error to its first leaf cause.
func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
