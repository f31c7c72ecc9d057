package strategies

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pbh-backtest/services/engine"
)

// LoadBarsCSV parses OHLCV bars from r. Expected columns:
// timestamp_ms,open,high,low,close,volume with an optional header row.
// Malformed rows are skipped, the result is sorted by timestamp and
// deduplicated (last row wins for equal timestamps).
func LoadBarsCSV(r io.Reader, logger *zap.Logger) ([]engine.Bar, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	bars := make([]engine.Bar, 0, 1024)
	line := 0
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			skipped++
			continue
		}
		line++
		if len(rec) < 6 {
			skipped++
			continue
		}
		tsStr := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\uFEFF")
		if line == 1 && !isNumeric(tsStr) {
			continue // header
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			skipped++
			continue
		}
		var vals [5]float64
		bad := false
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				bad = true
				break
			}
			vals[i] = v
		}
		if bad {
			skipped++
			continue
		}
		bars = append(bars, engine.Bar{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}

	if len(bars) > 1 {
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
		uniq := bars[:0]
		var lastTs int64 = -1
		for _, b := range bars {
			if b.Timestamp == lastTs {
				uniq[len(uniq)-1] = b
				continue
			}
			uniq = append(uniq, b)
			lastTs = b.Timestamp
		}
		bars = uniq
	}
	if skipped > 0 {
		logger.Warn("skipped malformed CSV rows", zap.Int("rows", skipped))
	}
	logger.Info("parsed bars from CSV", zap.Int("bars", len(bars)))
	if len(bars) == 0 {
		return nil, fmt.Errorf("no parsable bars in input")
	}
	return bars, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// FeedQuality describes dataset health as measured by CheckFeed.
type FeedQuality struct {
	Bars       int
	CadenceMs  int64
	Gaps       int
	BadOrder   int
	WildJumps  int
	MinClose   float64
	MaxClose   float64
}

// CheckFeed validates a bar series before a run: monotone timestamps,
// detected cadence, gap count, and bar-to-bar jump ratio. Out-of-order
// data is refused outright; gaps across session boundaries are expected
// and only reported.
func CheckFeed(bars []engine.Bar, logger *zap.Logger) (FeedQuality, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := FeedQuality{Bars: len(bars)}
	if len(bars) == 0 {
		return q, fmt.Errorf("no bars loaded")
	}

	// Detect cadence: most common delta between consecutive bars.
	deltaCount := make(map[int64]int)
	limit := len(bars)
	if limit > 2000 {
		limit = 2000
	}
	for i := 1; i < limit; i++ {
		d := bars[i].Timestamp - bars[i-1].Timestamp
		if d > 0 {
			deltaCount[d]++
		}
	}
	best := -1
	for d, c := range deltaCount {
		if c > best || (c == best && d < q.CadenceMs) {
			best = c
			q.CadenceMs = d
		}
	}

	q.MinClose = bars[0].Close
	q.MaxClose = bars[0].Close
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp <= bars[i-1].Timestamp {
			q.BadOrder++
		} else if q.CadenceMs > 0 && bars[i].Timestamp-bars[i-1].Timestamp > q.CadenceMs {
			q.Gaps++
		}
		c, p := bars[i].Close, bars[i-1].Close
		if c < q.MinClose {
			q.MinClose = c
		}
		if c > q.MaxClose {
			q.MaxClose = c
		}
		if p > 0 && abs(c/p-1) > 0.2 {
			q.WildJumps++
		}
	}

	logger.Info("feed quality",
		zap.Int("bars", q.Bars),
		zap.Int64("cadence_ms", q.CadenceMs),
		zap.Int("gaps", q.Gaps),
		zap.Int("bad_order", q.BadOrder),
		zap.Int("wild_jumps", q.WildJumps),
	)

	if q.BadOrder > 0 {
		return q, fmt.Errorf("refused: %d bars with non-monotonic timestamps", q.BadOrder)
	}
	if ratio := float64(q.WildJumps) / float64(len(bars)); ratio > 0.05 {
		return q, fmt.Errorf("refused: %.1f%% of bars have >20%% price jumps", ratio*100)
	}
	if q.Gaps > 0 {
		logger.Warn("gaps detected in data; expected across session boundaries", zap.Int("gaps", q.Gaps))
	}
	return q, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
