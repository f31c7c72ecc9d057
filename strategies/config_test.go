package strategies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbh-backtest/services/engine"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultPBHConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PBHConfig)
	}{
		{"no direction", func(c *PBHConfig) { c.TakeLong, c.TakeShort = false, false }},
		{"zero entry cap", func(c *PBHConfig) { c.MaxEntryCount = 0 }},
		{"zero pyramiding", func(c *PBHConfig) { c.PyramidingCount = 0 }},
		{"negative rvol", func(c *PBHConfig) { c.RVOL = -1 }},
		{"tp sum over 100", func(c *PBHConfig) { c.TPPercents = [engine.MaxTakeProfitLegs]float64{50, 50, 50, 0} }},
		{"leg without multiplier", func(c *PBHConfig) { c.TPMultipliers[0] = 0 }},
		{"inverted stop bounds", func(c *PBHConfig) { c.MinSLPerc, c.MaxSLPerc = 3, 1 }},
		{"sl buffer over one", func(c *PBHConfig) { c.SLBuffer = 1.5 }},
		{"move target at trigger", func(c *PBHConfig) { c.MoveRVal = c.MSRVal }},
		{"zero pending lifetime", func(c *PBHConfig) { c.PendingBarCount = 0 }},
		{"zero risk", func(c *PBHConfig) { c.RiskFirstTrade = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPBHConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadPBHConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbh.yaml")
	body := `
symbol: AAPL
take_short: true
max_entry_count: 3
rvol: 2.5
tp_percents: [40, 30, 30, 0]
session:
  timezone: America/New_York
  first_bar: "0930-0935"
  last_bar: "1555-1600"
  entry_one: "0930-1130"
  entry_two: "1330-1525"
  half_days: ["2026-11-27"]
  half_day_close: "1300"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadPBHConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", cfg.Symbol)
	assert.True(t, cfg.TakeShort)
	assert.True(t, cfg.TakeLong, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.MaxEntryCount)
	assert.Equal(t, 2.5, cfg.RVOL)
	assert.Equal(t, [engine.MaxTakeProfitLegs]float64{40, 30, 30, 0}, cfg.TPPercents)
	assert.Equal(t, []string{"2026-11-27"}, cfg.Session.HalfDays)
}

func TestLoadPBHConfigMissingFile(t *testing.T) {
	_, err := LoadPBHConfig("/nonexistent/pbh.yaml")
	assert.Error(t, err)
}
