package engine

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config is one backtest run's full configuration. A run is a pure function
// of (config, candle stream); the config hash goes into the run manifest so
// results stay attributable.
type Config struct {
	Symbol string `json:"symbol"`

	// SignalTimeframe is the aggregation period strategy evaluation runs
	// on. Zero or the base interval evaluates on every base candle.
	SignalTimeframe time.Duration `json:"signal_timeframe"`

	FillPolicy FillPolicy `json:"fill_policy"`
	PricePath  PricePath  `json:"price_path"`

	EnableSetupTrigger  bool          `json:"enable_setup_trigger"`
	SetupValidityWindow time.Duration `json:"setup_validity_window"`

	Leverage       float64 `json:"leverage"`
	InitialCapital float64 `json:"initial_capital"`

	MakerFee        float64 `json:"maker_fee"`
	TakerFee        float64 `json:"taker_fee"`
	FundingRate     float64 `json:"funding_rate"`
	SlippagePercent float64 `json:"slippage_percent"`

	// StrictWickRatio is the minimum penetration depth (fraction of candle
	// range) the strict fill policy demands before accepting a touch.
	StrictWickRatio float64 `json:"strict_wick_ratio"`
	// StrictSpread is the adverse price offset (fraction of price) the
	// strict policy adds to fills.
	StrictSpread float64 `json:"strict_spread"`

	Strategy       string            `json:"strategy"`
	StrategyParams map[string]string `json:"strategy_params,omitempty"`

	// Quantity is the default order size when the strategy does not set one.
	Quantity float64 `json:"quantity"`
}

const (
	defaultStrictWickRatio = 0.25
	defaultStrictSpread    = 0.0005
)

// ApplyDefaults fills zero-valued tunables.
func (c *Config) ApplyDefaults() {
	if c.SignalTimeframe == 0 {
		c.SignalTimeframe = BaseInterval
	}
	if c.Leverage == 0 {
		c.Leverage = 1
	}
	if c.StrictWickRatio == 0 {
		c.StrictWickRatio = defaultStrictWickRatio
	}
	if c.StrictSpread == 0 {
		c.StrictSpread = defaultStrictSpread
	}
}

func (c *Config) Validate() error {
	if c.Symbol == "" {
		return errors.New("config: symbol required")
	}
	if c.Strategy == "" {
		return errors.New("config: strategy required")
	}
	if c.InitialCapital <= 0 {
		return errors.New("config: initial capital must be positive")
	}
	if c.Leverage <= 0 {
		return errors.New("config: leverage must be positive")
	}
	if c.Quantity <= 0 {
		return errors.New("config: quantity must be positive")
	}
	if c.SignalTimeframe%BaseInterval != 0 {
		return fmt.Errorf("config: signal timeframe %s is not a multiple of the base interval", c.SignalTimeframe)
	}
	if c.EnableSetupTrigger && c.SetupValidityWindow <= 0 {
		return errors.New("config: setup validity window must be positive when the setup-trigger model is enabled")
	}
	return nil
}

// Hash returns the sha256 of the canonical JSON encoding, for the run
// manifest.
func (c Config) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// RunManifest records everything needed to attribute and reproduce a run.
type RunManifest struct {
	RunID         string `json:"run_id"`
	Symbol        string `json:"symbol"`
	Strategy      string `json:"strategy"`
	ConfigHash    string `json:"config_hash"`
	EngineVersion string `json:"engine_version"`
	FillPolicy    string `json:"fill_policy"`
	PricePath     string `json:"price_path"`
	CandlesFed    int    `json:"candles_fed"`
	CreatedAt     int64  `json:"created_at"`
}
