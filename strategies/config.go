package strategies

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pbh-backtest/services/engine"
)

// PBHConfig is the full parameter surface of the Prior Bar High breakout
// strategy. It is immutable after Validate; every invalid combination is
// refused at construction so a running engine never sees a bad config.
type PBHConfig struct {
	Symbol string `yaml:"symbol"`

	// Direction toggles
	TakeLong  bool `yaml:"take_long"`
	TakeShort bool `yaml:"take_short"`

	// Daily limits
	UseEOD          bool `yaml:"use_eod"`
	MaxEntryCount   int  `yaml:"max_entry_count"`
	PyramidingCount int  `yaml:"pyramiding_count"`

	// Volume gates
	VolMAPeriod  int     `yaml:"vol_ma_period"`
	RVOL         float64 `yaml:"rvol"`
	MinAbsVolume float64 `yaml:"min_abs_volume"`

	// Range gates
	BufferPerc    float64 `yaml:"buffer_perc"`     // entry trigger buffer, percent
	MinCandlePerc float64 `yaml:"min_candle_perc"` // close-to-close move gate
	ADRPeriod     int     `yaml:"adr_period"`
	ADRMultiplier float64 `yaml:"adr_multiplier"`

	// Up-close volume record gates (each off by default)
	RequireNewMaxUpVolEver    bool `yaml:"require_new_max_up_vol_ever"`
	RequireNewMaxUpVolRolling bool `yaml:"require_new_max_up_vol_rolling"`
	UpVolRollingWeeks         int  `yaml:"up_vol_rolling_weeks"`

	// Take-profit ladder
	TPMultipliers [engine.MaxTakeProfitLegs]float64 `yaml:"tp_multipliers"`
	TPPercents    [engine.MaxTakeProfitLegs]float64 `yaml:"tp_percents"`

	// Stop placement
	MaxSLPerc float64 `yaml:"max_sl_perc"`
	MinSLPerc float64 `yaml:"min_sl_perc"`
	SLBuffer  float64 `yaml:"sl_buffer"` // fraction of the breakout range

	// Move-stop
	UseMS      bool    `yaml:"use_ms"`
	MSRVal     float64 `yaml:"ms_rval"`   // trigger distance in R
	MoveRVal   float64 `yaml:"move_rval"` // migrated stop distance in R
	MSBarCount int     `yaml:"ms_bar_count"`

	// Pending order lifetime, in bars
	PendingBarCount int `yaml:"pending_bar_count"`

	// Entry-candle ADR-ratio thresholds for the take-profit gate
	RoteInputOne float64 `yaml:"rote_input_one"`
	RoteInputTwo float64 `yaml:"rote_input_two"`

	// Risk budget, dollars
	RiskFirstTrade float64 `yaml:"risk_first_trade"`
	RiskNextTrades float64 `yaml:"risk_next_trades"`

	Session engine.SessionConfig `yaml:"session"`
}

// DefaultPBHConfig returns the baseline parameter set for US equities on
// a five-minute timeframe.
func DefaultPBHConfig() PBHConfig {
	return PBHConfig{
		TakeLong:          true,
		TakeShort:         false,
		UseEOD:            true,
		MaxEntryCount:     2,
		PyramidingCount:   1,
		VolMAPeriod:       50,
		RVOL:              1.5,
		MinAbsVolume:      100000,
		UpVolRollingWeeks: 6,
		BufferPerc:        0.05,
		MinCandlePerc:     0.5,
		ADRPeriod:         20,
		ADRMultiplier:     0.2,
		TPMultipliers:     [engine.MaxTakeProfitLegs]float64{1, 2, 3, 4},
		TPPercents:        [engine.MaxTakeProfitLegs]float64{25, 25, 25, 25},
		MaxSLPerc:         2.0,
		MinSLPerc:         0.3,
		SLBuffer:          0.25,
		UseMS:             true,
		MSRVal:            1.0,
		MoveRVal:          0.0, // breakeven
		MSBarCount:        12,
		PendingBarCount:   3,
		RoteInputOne:      150,
		RoteInputTwo:      100,
		RiskFirstTrade:    1000,
		RiskNextTrades:    500,
		Session: engine.SessionConfig{
			Timezone:     "America/New_York",
			FirstBar:     "0930-0935",
			LastBar:      "1555-1600",
			EntryOne:     "0930-1130",
			EntryTwo:     "1330-1525",
			HalfDayClose: "1300",
		},
	}
}

// LoadPBHConfig reads a YAML parameter file over the defaults.
func LoadPBHConfig(path string) (PBHConfig, error) {
	cfg := DefaultPBHConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate refuses invalid parameter combinations. Construction-time
// failures here are the only error class that halts a run.
func (c *PBHConfig) Validate() error {
	if !c.TakeLong && !c.TakeShort {
		return fmt.Errorf("at least one of take_long/take_short must be enabled")
	}
	if c.MaxEntryCount < 1 {
		return fmt.Errorf("max_entry_count must be >= 1, got %d", c.MaxEntryCount)
	}
	if c.PyramidingCount < 1 {
		return fmt.Errorf("pyramiding_count must be >= 1, got %d", c.PyramidingCount)
	}
	if c.VolMAPeriod < 1 {
		return fmt.Errorf("vol_ma_period must be >= 1, got %d", c.VolMAPeriod)
	}
	if c.ADRPeriod < 1 {
		return fmt.Errorf("adr_period must be >= 1, got %d", c.ADRPeriod)
	}
	if c.RVOL < 0 || c.MinAbsVolume < 0 || c.BufferPerc < 0 || c.MinCandlePerc < 0 || c.ADRMultiplier < 0 {
		return fmt.Errorf("gate thresholds must be non-negative")
	}
	sum := 0.0
	for i, p := range c.TPPercents {
		if p < 0 {
			return fmt.Errorf("tp_percents[%d] must be non-negative, got %g", i, p)
		}
		if p > 0 && c.TPMultipliers[i] <= 0 {
			return fmt.Errorf("tp_multipliers[%d] must be positive when its leg carries quantity", i)
		}
		sum += p
	}
	if sum > 100 {
		return fmt.Errorf("tp_percents sum to %g, must not exceed 100", sum)
	}
	if c.MinSLPerc < 0 || c.MaxSLPerc <= 0 || c.MinSLPerc > c.MaxSLPerc {
		return fmt.Errorf("stop bounds invalid: min_sl_perc=%g max_sl_perc=%g", c.MinSLPerc, c.MaxSLPerc)
	}
	if c.SLBuffer < 0 || c.SLBuffer > 1 {
		return fmt.Errorf("sl_buffer must be a fraction in [0,1], got %g", c.SLBuffer)
	}
	if c.UseMS {
		if c.MSBarCount < 1 {
			return fmt.Errorf("ms_bar_count must be >= 1 when use_ms is on, got %d", c.MSBarCount)
		}
		if c.MSRVal <= 0 {
			return fmt.Errorf("ms_rval must be positive when use_ms is on, got %g", c.MSRVal)
		}
		if c.MoveRVal >= c.MSRVal {
			return fmt.Errorf("move_rval (%g) must be below ms_rval (%g)", c.MoveRVal, c.MSRVal)
		}
	}
	if c.PendingBarCount < 1 {
		return fmt.Errorf("pending_bar_count must be >= 1, got %d", c.PendingBarCount)
	}
	if c.RiskFirstTrade <= 0 || c.RiskNextTrades <= 0 {
		return fmt.Errorf("risk budgets must be positive: first=%g next=%g", c.RiskFirstTrade, c.RiskNextTrades)
	}
	if c.RequireNewMaxUpVolRolling && c.UpVolRollingWeeks < 1 {
		return fmt.Errorf("up_vol_rolling_weeks must be >= 1 when the rolling gate is on")
	}
	return nil
}
