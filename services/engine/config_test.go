package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Symbol:          "BTCUSDT",
		Strategy:        "test",
		SignalTimeframe: time.Hour,
		InitialCapital:  10_000,
		Leverage:        5,
		Quantity:        0.1,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.SignalTimeframe = 90 * time.Second
	assert.Error(t, bad.Validate(), "timeframe must be a 1m multiple")

	bad = cfg
	bad.InitialCapital = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.EnableSetupTrigger = true
	assert.Error(t, bad.Validate(), "setup-trigger mode needs a validity window")
	bad.SetupValidityWindow = time.Hour
	assert.NoError(t, bad.Validate())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Symbol: "X", Strategy: "y", InitialCapital: 1, Quantity: 1}
	cfg.ApplyDefaults()
	assert.Equal(t, BaseInterval, cfg.SignalTimeframe)
	assert.Equal(t, 1.0, cfg.Leverage)
	assert.Equal(t, 0.25, cfg.StrictWickRatio)
	assert.Equal(t, 0.0005, cfg.StrictSpread)
}

func TestConfigHashStable(t *testing.T) {
	a := validConfig()
	b := validConfig()
	assert.Equal(t, a.Hash(), b.Hash())

	b.Leverage = 10
	assert.NotEqual(t, a.Hash(), b.Hash())
}
