// Package proto defines the wire types for the backtest service API.
package proto

import "context"

type RunRequest struct {
	Symbols    []string `json:"symbols"`
	Interval   string   `json:"interval"`
	StartTime  int64    `json:"start_time"`
	EndTime    int64    `json:"end_time"`
	ConfigPath string   `json:"config_path"`
}

type TradeRecord struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	EntryTime  int64  `json:"entry_time"`
	EntryPrice string `json:"entry_price"`
	ExitTime   int64  `json:"exit_time"`
	ExitPrice  string `json:"exit_price"`
	ExitReason string `json:"exit_reason"`
	Quantity   string `json:"quantity"`
	PnlUsd     string `json:"pnl_usd"`
	RMultiple  string `json:"r_multiple"`
	BarsHeld   int32  `json:"bars_held"`
}

type EquityPoint struct {
	Timestamp int64  `json:"timestamp"`
	Equity    string `json:"equity"`
	Drawdown  string `json:"drawdown"`
}

type Summary struct {
	TotalTrades        int32  `json:"total_trades"`
	Wins               int32  `json:"wins"`
	Losses             int32  `json:"losses"`
	WinRate            string `json:"win_rate"`
	NetPnlUsd          string `json:"net_pnl_usd"`
	ProfitFactor       string `json:"profit_factor"`
	Expectancy         string `json:"expectancy"`
	MaxDrawdown        string `json:"max_drawdown"`
	AvgRMultiple       string `json:"avg_r_multiple"`
	EntriesPlacedTotal int32  `json:"entries_placed_total"`
	EntriesFilledTotal int32  `json:"entries_filled_total"`
}

type SymbolResult struct {
	Symbol      string         `json:"symbol"`
	Trades      []*TradeRecord `json:"trades"`
	EquityCurve []*EquityPoint `json:"equity_curve"`
	Summary     *Summary       `json:"summary"`
}

type RunManifest struct {
	JobId         string `json:"job_id"`
	EngineVersion string `json:"engine_version"`
	ConfigDigest  string `json:"config_digest"`
	CreatedAt     int64  `json:"created_at"`
}

type RunResponse struct {
	JobId           string          `json:"job_id"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	SymbolResults   []*SymbolResult `json:"symbol_results"`
	Manifest        *RunManifest    `json:"manifest"`
}

// gRPC server interface stub

type UnimplementedStrategyServiceServer struct{}

func (UnimplementedStrategyServiceServer) ExecuteRun(context.Context, *RunRequest) (*RunResponse, error) {
	return nil, nil
}

func RegisterStrategyServiceServer(_ any, _ StrategyServiceServer) {}

type StrategyServiceServer interface {
	ExecuteRun(context.Context, *RunRequest) (*RunResponse, error)
}
