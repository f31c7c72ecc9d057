package strategies

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// WriteTradesCSV exports the closed trade records for spreadsheet
// review. Prices keep full decimal precision.
func (r *RunResult) WriteTradesCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"symbol", "side", "entry_time_utc", "entry_price",
		"exit_time_utc", "exit_price", "exit_reason",
		"quantity", "pnl_usd", "r_multiple", "bars_held",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range r.Trades {
		row := []string{
			t.Symbol,
			t.Side.String(),
			t.EntryTimeUTC().Format(time.RFC3339),
			t.EntryPrice.String(),
			t.ExitTimeUTC().Format(time.RFC3339),
			t.ExitPrice.String(),
			t.ExitReason,
			t.Quantity.String(),
			t.PnlUsd.StringFixed(2),
			t.RMultiple.StringFixed(3),
			strconv.Itoa(t.BarsHeld),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write trade row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

type summaryReport struct {
	Symbol             string `json:"symbol"`
	TotalTrades        int    `json:"total_trades"`
	Wins               int    `json:"wins"`
	Losses             int    `json:"losses"`
	WinRate            string `json:"win_rate"`
	NetPnlUsd          string `json:"net_pnl_usd"`
	AvgWinUsd          string `json:"avg_win_usd"`
	AvgLossUsd         string `json:"avg_loss_usd"`
	Expectancy         string `json:"expectancy"`
	ProfitFactor       string `json:"profit_factor"`
	MaxDrawdown        string `json:"max_drawdown"`
	AvgHoldingBars     string `json:"avg_holding_bars"`
	AvgRMultiple       string `json:"avg_r_multiple"`
	EntriesPlacedTotal int    `json:"entries_placed_total"`
	EntriesFilledTotal int    `json:"entries_filled_total"`
	ForcedFlattenCount int    `json:"forced_flatten_count"`
	RejectedOrderCount int    `json:"rejected_order_count"`
}

// WriteSummaryJSON exports the run summary.
func (r *RunResult) WriteSummaryJSON(path string) error {
	s := r.Summary
	rep := summaryReport{
		Symbol:             r.Symbol,
		TotalTrades:        s.TotalTrades,
		Wins:               s.Wins,
		Losses:             s.Losses,
		WinRate:            s.WinRate.StringFixed(4),
		NetPnlUsd:          s.NetPnlUsd.StringFixed(2),
		AvgWinUsd:          s.AvgWinUsd.StringFixed(2),
		AvgLossUsd:         s.AvgLossUsd.StringFixed(2),
		Expectancy:         s.Expectancy.StringFixed(2),
		ProfitFactor:       s.ProfitFactor.StringFixed(3),
		MaxDrawdown:        s.MaxDrawdown.StringFixed(2),
		AvgHoldingBars:     s.AvgHoldingBars.StringFixed(1),
		AvgRMultiple:       s.AvgRMultiple.StringFixed(3),
		EntriesPlacedTotal: s.EntriesPlacedTotal,
		EntriesFilledTotal: s.EntriesFilledTotal,
		ForcedFlattenCount: s.ForcedFlattenCount,
		RejectedOrderCount: s.RejectedOrderCount,
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
