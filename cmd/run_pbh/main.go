// Single-symbol Prior Bar High backtest runner. Reads bars from a local
// CSV or straight from ClickHouse, runs the strategy, and writes trade
// and summary reports.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pbh-backtest/services/arrowpipeline"
	"pbh-backtest/services/clickhouse"
	"pbh-backtest/services/config"
	"pbh-backtest/services/engine"
	"pbh-backtest/strategies"
)

func main() {
	csvPath := flag.String("csv", "", "Path to local OHLCV CSV; if set, skip ClickHouse")
	cfgPath := flag.String("config", "", "Strategy YAML parameter file (defaults when empty)")
	svcCfgPath := flag.String("service-config", "", "Service YAML config for ClickHouse access")
	symbol := flag.String("symbol", "AAPL", "Trading symbol")
	interval := flag.String("interval", "5m", "Bar interval stored in ClickHouse")
	from := flag.String("from", "2020-01-01", "Start date UTC (YYYY-MM-DD)")
	to := flag.String("to", "2026-01-01", "End date UTC (YYYY-MM-DD)")
	outTrades := flag.String("out-trades", "./trades.csv", "Trades CSV output path")
	outSummary := flag.String("out-summary", "./summary.json", "Summary JSON output path")
	outArrow := flag.String("out-arrow", "", "Optional Arrow IPC trade export path")
	verbose := flag.Bool("verbose", false, "Debug-level logging")
	flag.Parse()

	logger := buildLogger(*verbose)
	defer logger.Sync()

	jobID := uuid.New().String()
	logger.Info("starting run", zap.String("job_id", jobID), zap.String("symbol", *symbol))

	bars, err := loadBars(*csvPath, *svcCfgPath, *symbol, *interval, *from, *to, logger)
	if err != nil {
		logger.Fatal("load bars", zap.Error(err))
	}
	if _, err := strategies.CheckFeed(bars, logger); err != nil {
		logger.Fatal("feed rejected", zap.Error(err))
	}

	cfg := strategies.DefaultPBHConfig()
	if *cfgPath != "" {
		cfg, err = strategies.LoadPBHConfig(*cfgPath)
		if err != nil {
			logger.Fatal("load strategy config", zap.Error(err))
		}
	}
	cfg.Symbol = *symbol

	strat, err := strategies.NewPBHStrategy(cfg, engine.NewSimBroker(), logger)
	if err != nil {
		logger.Fatal("build strategy", zap.Error(err))
	}
	started := time.Now()
	res, err := strat.Run(bars)
	if err != nil {
		logger.Fatal("run", zap.Error(err))
	}
	logger.Info("run finished",
		zap.String("job_id", jobID),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("bars", len(bars)),
		zap.Int("trades", len(res.Trades)),
	)

	if err := res.WriteTradesCSV(*outTrades); err != nil {
		logger.Fatal("write trades", zap.Error(err))
	}
	if err := res.WriteSummaryJSON(*outSummary); err != nil {
		logger.Fatal("write summary", zap.Error(err))
	}
	if *outArrow != "" && len(res.Trades) > 0 {
		pipe, err := arrowpipeline.NewPipeline(nil, logger)
		if err != nil {
			logger.Fatal("arrow pipeline", zap.Error(err))
		}
		data, err := pipe.ConvertTrades(res.Trades)
		if err != nil {
			logger.Fatal("convert trades", zap.Error(err))
		}
		if err := os.WriteFile(*outArrow, data, 0o644); err != nil {
			logger.Fatal("write arrow", zap.Error(err))
		}
	}

	s := res.Summary
	fmt.Println("=== PBH Backtest Summary ===")
	fmt.Printf("Symbol: %s  Bars: %d\n", *symbol, len(bars))
	fmt.Printf("Trades: %d, WinRate: %s, ProfitFactor: %s, NetPnL: $%s\n",
		s.TotalTrades, s.WinRate.StringFixed(4), s.ProfitFactor.StringFixed(3), s.NetPnlUsd.StringFixed(2))
	fmt.Printf("MaxDrawdown: $%s, AvgR: %s, EntriesPlaced: %d, Filled: %d\n",
		s.MaxDrawdown.StringFixed(2), s.AvgRMultiple.StringFixed(3),
		s.EntriesPlacedTotal, s.EntriesFilledTotal)
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func loadBars(csvPath, svcCfgPath, symbol, interval, from, to string, logger *zap.Logger) ([]engine.Bar, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", csvPath, err)
		}
		defer f.Close()
		return strategies.LoadBarsCSV(decodeMaybeUTF16(f), logger)
	}

	svcCfg, err := config.Load(svcCfgPath)
	if err != nil {
		return nil, fmt.Errorf("service config: %w", err)
	}
	ctx := context.Background()
	ch, err := clickhouse.NewClient(ctx, svcCfg.ClickHouse, logger)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	fromTs, err := parseDay(from)
	if err != nil {
		return nil, err
	}
	toTs, err := parseDay(to)
	if err != nil {
		return nil, err
	}
	return ch.QueryBars(ctx, symbol, interval, fromTs, toTs)
}

func parseDay(s string) (int64, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

// decodeMaybeUTF16 wraps exported spreadsheets that carry a UTF-16 BOM.
func decodeMaybeUTF16(f *os.File) io.Reader {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		f.Seek(0, 0)
		return transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}
