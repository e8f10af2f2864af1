package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Trading.Timeframe = "5m"
	cfg.Gateway.Mode = "paper"
	cfg.Gateway.Paper.StartingEquity = 10000
	cfg.Gateway.Paper.DataSource = "synthetic"

	gw, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "paper", gw.Name())

	cfg.Gateway.Mode = "binance"
	cfg.Gateway.Binance.APIKey = "k"
	cfg.Gateway.Binance.SecretKey = "s"
	gw, err = NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "binance", gw.Name())

	cfg.Gateway.Mode = "ftx"
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)

	cfg.Gateway.Mode = "paper"
	cfg.Gateway.Paper.DataSource = "csv"
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)

	_, err = NewFromConfig(nil)
	assert.Error(t, err)
}
