// Loads OHLCV CSV exports into the ClickHouse bars table. Re-running
// the installer on the same files is safe: the table deduplicates on
// (symbol, interval, ts_ms) and keeps the newest version.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pbh-backtest/services/clickhouse"
	"pbh-backtest/services/config"
	"pbh-backtest/strategies"
)

func main() {
	csvPath := flag.String("csv", "", "CSV file or directory of CSVs to install")
	symbol := flag.String("symbol", "", "Symbol override; defaults to the file name stem")
	interval := flag.String("interval", "5m", "Bar interval label")
	svcCfgPath := flag.String("service-config", "", "Service YAML config path")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: install_candles -csv <file-or-dir> [-symbol SYM] [-interval 5m]")
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*svcCfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Fatal("clickhouse", zap.Error(err))
	}
	defer ch.Close()

	if err := ch.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	files, err := collectFiles(*csvPath)
	if err != nil {
		logger.Fatal("collect files", zap.Error(err))
	}

	started := time.Now()
	total := 0
	for _, path := range files {
		sym := *symbol
		if sym == "" {
			sym = symbolFromPath(path)
		}
		n, err := installFile(ctx, ch, path, sym, *interval, logger)
		if err != nil {
			logger.Fatal("install", zap.String("file", path), zap.Error(err))
		}
		total += n
		logger.Info("installed", zap.String("file", path), zap.String("symbol", sym), zap.Int("bars", n))
	}

	fmt.Printf("=== Install Summary ===\n")
	fmt.Printf("Files: %d, Bars: %d, Elapsed: %s\n", len(files), total, time.Since(started).Round(time.Millisecond))
}

func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV files under %s", path)
	}
	return files, nil
}

// symbolFromPath derives the symbol from a file name like AAPL_5m.csv.
func symbolFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.IndexAny(stem, "_-."); i > 0 {
		stem = stem[:i]
	}
	return strings.ToUpper(stem)
}

func installFile(ctx context.Context, ch *clickhouse.Client, path, symbol, interval string, logger *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	bars, err := strategies.LoadBarsCSV(decodeMaybeUTF16(f), logger)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no parsable rows in %s", path)
	}
	if err := ch.InsertBars(ctx, symbol, interval, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
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
