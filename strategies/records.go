// Trade records and summary statistics for PBH backtest runs.

package strategies

import (
	"time"

	"github.com/shopspring/decimal"

	"pbh-backtest/services/engine"
)

// TradeRecord is one closed (possibly partial) exit. Quantities and
// money amounts are decimal so downstream reporting never accumulates
// float drift.
type TradeRecord struct {
	Symbol     string
	Side       engine.PositionSide
	EntryTime  int64
	EntryPrice decimal.Decimal
	ExitTime   int64
	ExitPrice  decimal.Decimal
	ExitReason string // "StopLoss", "TakeProfit1".."TakeProfit4", "EndOfDay", "EndOfData", "Flatten", "Reject"
	Quantity   decimal.Decimal
	PnlUsd     decimal.Decimal
	RMultiple  decimal.Decimal
	StopPrice  decimal.Decimal
	StopOrig   decimal.Decimal
	BarsHeld   int
}

// EquityPoint is one sample of the run equity curve.
type EquityPoint struct {
	Timestamp int64
	Equity    decimal.Decimal
	Drawdown  decimal.Decimal
}

// Summary contains aggregated statistics over a run's trade records.
type Summary struct {
	TotalTrades         int
	Wins                int
	Losses              int
	WinRate             decimal.Decimal
	NetPnlUsd           decimal.Decimal
	AvgWinUsd           decimal.Decimal
	AvgLossUsd          decimal.Decimal
	Expectancy          decimal.Decimal
	ProfitFactor        decimal.Decimal
	MaxDrawdown         decimal.Decimal
	AvgHoldingBars      decimal.Decimal
	AvgRMultiple        decimal.Decimal
	EntriesPlacedTotal  int
	EntriesFilledTotal  int
	ForcedFlattenCount  int
	RejectedOrderCount  int
}

// Summarize computes run statistics from the closed trade records and
// the tracked max drawdown.
func Summarize(trades []TradeRecord, maxDrawdown decimal.Decimal) Summary {
	s := Summary{TotalTrades: len(trades), MaxDrawdown: maxDrawdown}
	if len(trades) == 0 {
		return s
	}

	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	totalR := decimal.Zero
	totalBars := 0
	for _, t := range trades {
		s.NetPnlUsd = s.NetPnlUsd.Add(t.PnlUsd)
		totalR = totalR.Add(t.RMultiple)
		totalBars += t.BarsHeld
		if t.PnlUsd.IsPositive() {
			s.Wins++
			grossWin = grossWin.Add(t.PnlUsd)
		} else {
			s.Losses++
			grossLoss = grossLoss.Add(t.PnlUsd.Abs())
		}
	}

	n := decimal.NewFromInt(int64(len(trades)))
	s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(n)
	if s.Wins > 0 {
		s.AvgWinUsd = grossWin.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLossUsd = grossLoss.Div(decimal.NewFromInt(int64(s.Losses)))
	}
	s.Expectancy = s.NetPnlUsd.Div(n)
	if grossLoss.IsPositive() {
		s.ProfitFactor = grossWin.Div(grossLoss)
	}
	s.AvgHoldingBars = decimal.NewFromInt(int64(totalBars)).Div(n)
	s.AvgRMultiple = totalR.Div(n)
	return s
}

// ExitTimeUTC is a convenience for report formatting.
func (t TradeRecord) ExitTimeUTC() time.Time { return time.UnixMilli(t.ExitTime).UTC() }

// EntryTimeUTC is a convenience for report formatting.
func (t TradeRecord) EntryTimeUTC() time.Time { return time.UnixMilli(t.EntryTime).UTC() }
