// Package clickhouse stores and serves OHLCV bars over the native
// protocol. The schema uses ReplacingMergeTree keyed by
// (symbol, interval, ts_ms) so repeated installs stay idempotent.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"pbh-backtest/services/config"
	"pbh-backtest/services/engine"
)

// Client wraps a native ClickHouse connection for bar storage.
type Client struct {
	conn   clickhouse.Conn
	db     string
	table  string
	logger *zap.Logger
}

// NewClient opens and pings a connection.
func NewClient(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{conn: conn, db: cfg.Database, table: cfg.Table, logger: logger}, nil
}

// EnsureSchema creates the database and bar table when missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.db)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol String,
			interval LowCardinality(String),
			ts_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, ts_ms)
		SETTINGS index_granularity = 8192
	`, c.db, c.table)
	if err := c.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// QueryBars returns bars for one symbol and interval within [from, to),
// ordered by timestamp. FINAL collapses ReplacingMergeTree duplicates.
func (c *Client) QueryBars(ctx context.Context, symbol, interval string, from, to int64) ([]engine.Bar, error) {
	q := fmt.Sprintf(`
		SELECT ts_ms, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE symbol = ? AND interval = ? AND ts_ms >= ? AND ts_ms < ?
		ORDER BY ts_ms
	`, c.db, c.table)
	rows, err := c.conn.Query(ctx, q, symbol, interval, uint64(from), uint64(to))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var ts uint64
		var b engine.Bar
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = int64(ts)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	c.logger.Debug("loaded bars",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// InsertBars batch-inserts bars with server-side deduplication. All rows
// of one call share a version so re-running an install keeps the latest.
func (c *Client) InsertBars(ctx context.Context, symbol, interval string, bars []engine.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.%s SETTINGS insert_deduplicate=1", c.db, c.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range bars {
		if err := batch.Append(
			symbol, interval,
			uint64(b.Timestamp),
			b.Open, b.High, b.Low, b.Close,
			b.Volume,
			now,
			ver,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	c.logger.Info("inserted bars",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("rows", len(bars)),
	)
	return nil
}

// Symbols lists distinct symbols stored for an interval.
func (c *Client) Symbols(ctx context.Context, interval string) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s.%s WHERE interval = ? ORDER BY symbol", c.db, c.table)
	rows, err := c.conn.Query(ctx, q, interval)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }
