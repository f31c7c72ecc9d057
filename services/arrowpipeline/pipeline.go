// Package arrowpipeline serializes bar series and trade records to
// Apache Arrow IPC streams for downstream analysis tooling.
package arrowpipeline

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"pbh-backtest/services/engine"
	"pbh-backtest/strategies"
)

// Config holds pipeline tuning knobs.
type Config struct {
	BatchSize   int    `yaml:"batch_size"`
	Compression string `yaml:"compression"`
}

// Pipeline converts engine data to and from Arrow IPC.
type Pipeline struct {
	config *Config
	pool   memory.Allocator
	logger *zap.Logger
}

// NewPipeline creates a pipeline with its own allocator.
func NewPipeline(config *Config, logger *zap.Logger) (*Pipeline, error) {
	if config == nil {
		config = &Config{BatchSize: 10000}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: config, pool: memory.NewGoAllocator(), logger: logger}, nil
}

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// ConvertBars serializes a bar series to a single-record IPC stream.
func (p *Pipeline) ConvertBars(bars []engine.Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to convert")
	}

	ts := make([]int64, len(bars))
	cols := [5][]float64{}
	for i := range cols {
		cols[i] = make([]float64, len(bars))
	}
	for i, b := range bars {
		ts[i] = b.Timestamp
		cols[0][i] = b.Open
		cols[1][i] = b.High
		cols[2][i] = b.Low
		cols[3][i] = b.Close
		cols[4][i] = b.Volume
	}

	tsBuilder := array.NewInt64Builder(p.pool)
	tsBuilder.AppendValues(ts, nil)
	arrays := []arrow.Array{tsBuilder.NewInt64Array()}
	for _, col := range cols {
		fb := array.NewFloat64Builder(p.pool)
		fb.AppendValues(col, nil)
		arrays = append(arrays, fb.NewFloat64Array())
	}

	record := array.NewRecord(barSchema, arrays, int64(len(bars)))
	defer record.Release()
	return p.writeStream(barSchema, record)
}

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "side", Type: arrow.BinaryTypes.String},
	{Name: "entry_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "quantity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl_usd", Type: arrow.PrimitiveTypes.Float64},
	{Name: "r_multiple", Type: arrow.PrimitiveTypes.Float64},
	{Name: "bars_held", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// ConvertTrades serializes closed trade records to an IPC stream.
func (p *Pipeline) ConvertTrades(trades []strategies.TradeRecord) ([]byte, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades to convert")
	}

	symB := array.NewStringBuilder(p.pool)
	sideB := array.NewStringBuilder(p.pool)
	entryTsB := array.NewInt64Builder(p.pool)
	entryPxB := array.NewFloat64Builder(p.pool)
	exitTsB := array.NewInt64Builder(p.pool)
	exitPxB := array.NewFloat64Builder(p.pool)
	reasonB := array.NewStringBuilder(p.pool)
	qtyB := array.NewFloat64Builder(p.pool)
	pnlB := array.NewFloat64Builder(p.pool)
	rB := array.NewFloat64Builder(p.pool)
	barsB := array.NewInt64Builder(p.pool)

	for _, t := range trades {
		symB.Append(t.Symbol)
		sideB.Append(t.Side.String())
		entryTsB.Append(t.EntryTime)
		entryPxB.Append(t.EntryPrice.InexactFloat64())
		exitTsB.Append(t.ExitTime)
		exitPxB.Append(t.ExitPrice.InexactFloat64())
		reasonB.Append(t.ExitReason)
		qtyB.Append(t.Quantity.InexactFloat64())
		pnlB.Append(t.PnlUsd.InexactFloat64())
		rB.Append(t.RMultiple.InexactFloat64())
		barsB.Append(int64(t.BarsHeld))
	}

	record := array.NewRecord(tradeSchema, []arrow.Array{
		symB.NewStringArray(),
		sideB.NewStringArray(),
		entryTsB.NewInt64Array(),
		entryPxB.NewFloat64Array(),
		exitTsB.NewInt64Array(),
		exitPxB.NewFloat64Array(),
		reasonB.NewStringArray(),
		qtyB.NewFloat64Array(),
		pnlB.NewFloat64Array(),
		rB.NewFloat64Array(),
		barsB.NewInt64Array(),
	}, int64(len(trades)))
	defer record.Release()
	return p.writeStream(tradeSchema, record)
}

// ReadBars deserializes a bar IPC stream written by ConvertBars.
func (p *Pipeline) ReadBars(data []byte) ([]engine.Bar, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.pool))
	if err != nil {
		return nil, fmt.Errorf("open IPC stream: %w", err)
	}
	defer reader.Release()

	var bars []engine.Bar
	for reader.Next() {
		rec := reader.Record()
		ts := rec.Column(0).(*array.Int64)
		open := rec.Column(1).(*array.Float64)
		high := rec.Column(2).(*array.Float64)
		low := rec.Column(3).(*array.Float64)
		closeCol := rec.Column(4).(*array.Float64)
		vol := rec.Column(5).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			bars = append(bars, engine.Bar{
				Timestamp: ts.Value(i),
				Open:      open.Value(i),
				High:      high.Value(i),
				Low:       low.Value(i),
				Close:     closeCol.Value(i),
				Volume:    vol.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read IPC stream: %w", err)
	}
	p.logger.Debug("deserialized bars from Arrow", zap.Int("bars", len(bars)))
	return bars, nil
}

func (p *Pipeline) writeStream(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(p.pool))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write Arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close Arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}
