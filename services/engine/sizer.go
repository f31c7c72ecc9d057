package engine

import "math"

// RiskSizer converts a dollar risk budget and a stop distance into an
// integer share/contract quantity. The first trade of a day may carry a
// different budget than subsequent trades.
type RiskSizer struct {
	FirstTradeRisk float64 // dollars risked on the day's first entry
	NextTradeRisk  float64 // dollars risked on later entries
}

// RiskFor returns the budget for the nth entry of the day (0-based).
func (s RiskSizer) RiskFor(entryOfDay int) float64 {
	if entryOfDay == 0 {
		return s.FirstTradeRisk
	}
	return s.NextTradeRisk
}

// Quantity returns round(risk / |entry-stop|), floored at 1 when the
// stop distance is positive. A zero or inverted distance returns 0 and
// the caller must not submit the order.
func (s RiskSizer) Quantity(entryOfDay int, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if dist <= 0 || math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0
	}
	risk := s.RiskFor(entryOfDay)
	if risk <= 0 {
		return 0
	}
	qty := math.Round(risk / dist)
	if qty < 1 {
		qty = 1
	}
	return qty
}
