package strategies

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbh-backtest/services/engine"
)

func TestLoadBarsCSV(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"3000,101,102,100.5,101.5,1200",
		"1000,100,101,99.5,100.5,1000",
		"garbage,x,y,z,w,v",
		"2000,100.5,101.5,100,101,1100",
		"2000,100.6,101.6,100.1,101.1,1150", // duplicate ts, last wins
	}, "\n")

	bars, err := LoadBarsCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, int64(1000), bars[0].Timestamp)
	assert.Equal(t, int64(2000), bars[1].Timestamp)
	assert.Equal(t, 100.6, bars[1].Open, "last duplicate row wins")
	assert.Equal(t, int64(3000), bars[2].Timestamp)
}

func TestLoadBarsCSVStripsByteOrderMark(t *testing.T) {
	in := "\uFEFFtimestamp,open,high,low,close,volume\n" +
		"\uFEFF1000,100,101,99.5,100.5,1000\n"

	bars, err := LoadBarsCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1000), bars[0].Timestamp)
}

func TestLoadBarsCSVEmptyInput(t *testing.T) {
	_, err := LoadBarsCSV(strings.NewReader("timestamp,open,high,low,close,volume\n"), nil)
	assert.Error(t, err)
}

func TestCheckFeedDetectsCadenceAndGaps(t *testing.T) {
	step := int64(300_000) // 5m
	var bars []engine.Bar
	ts := int64(1_000_000)
	for i := 0; i < 10; i++ {
		bars = append(bars, engine.Bar{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1})
		ts += step
		if i == 4 {
			ts += 2 * step // simulated session gap
		}
	}
	q, err := CheckFeed(bars, nil)
	require.NoError(t, err)
	assert.Equal(t, step, q.CadenceMs)
	assert.Equal(t, 1, q.Gaps)
	assert.Equal(t, 0, q.BadOrder)
}

func TestCheckFeedRefusesBadOrderAndWildJumps(t *testing.T) {
	bars := []engine.Bar{
		{Timestamp: 2000, Close: 100},
		{Timestamp: 1000, Close: 100},
	}
	_, err := CheckFeed(bars, nil)
	assert.Error(t, err)

	// Over 5% of bars jumping more than 20% close-to-close is refused.
	bars = []engine.Bar{
		{Timestamp: 1000, Close: 100},
		{Timestamp: 2000, Close: 150},
		{Timestamp: 3000, Close: 90},
	}
	_, err = CheckFeed(bars, nil)
	assert.Error(t, err)
}
