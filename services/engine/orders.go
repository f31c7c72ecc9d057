package engine

// TradeSide is the direction of an individual order.
type TradeSide int

const (
	TradeSideBuy TradeSide = iota
	TradeSideSell
)

func (s TradeSide) String() string {
	if s == TradeSideBuy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side.
func (s TradeSide) Opposite() TradeSide {
	if s == TradeSideBuy {
		return TradeSideSell
	}
	return TradeSideBuy
}

// OrderKind distinguishes the three order roles the strategy submits.
type OrderKind int

const (
	KindStopEntry OrderKind = iota
	KindStopLoss
	KindTakeProfit
)

func (k OrderKind) String() string {
	switch k {
	case KindStopEntry:
		return "STOP_ENTRY"
	case KindStopLoss:
		return "STOP_LOSS"
	default:
		return "TAKE_PROFIT"
	}
}

// OrderID is an opaque broker handle.
type OrderID uint64

// OrderSpec is the submit-time description of an order. Protective
// orders share the GroupID of the position they guard; TP legs carry
// their leg index so sibling cancellation and first-touch resolution
// stay deterministic.
type OrderSpec struct {
	Kind     OrderKind
	Side     TradeSide
	Price    float64 // stop trigger or take-profit limit
	Quantity float64
	GroupID  uint64
	Leg      int
}

// ShouldTriggerStop returns true if a stop at the given price would
// trigger within this bar.
func ShouldTriggerStop(side TradeSide, stop float64, bar Bar) bool {
	if side == TradeSideBuy { // buy stop breakout up
		return bar.High >= stop
	}
	return bar.Low <= stop
}

// ShouldFillLimit returns true if a limit order would fill in this bar.
func ShouldFillLimit(side TradeSide, limit float64, bar Bar) bool {
	if side == TradeSideBuy {
		return bar.Low <= limit
	}
	return bar.High >= limit
}

// FillPriceStopMarket returns the deterministic fill price for a
// triggered stop-market order. Gaps through the stop fill at the open.
func FillPriceStopMarket(side TradeSide, stop float64, bar Bar) float64 {
	if side == TradeSideBuy {
		if bar.High >= stop {
			if bar.Open >= stop { // gapped over
				return bar.Open
			}
			return stop
		}
	} else {
		if bar.Low <= stop {
			if bar.Open <= stop {
				return bar.Open
			}
			return stop
		}
	}
	return 0
}

// FillPriceLimit returns the deterministic fill price for a touched
// limit order, filling at the open when the bar gaps through it.
func FillPriceLimit(side TradeSide, limit float64, bar Bar) float64 {
	if side == TradeSideBuy {
		if bar.Low <= limit {
			if bar.Open <= limit {
				return bar.Open
			}
			return limit
		}
	} else {
		if bar.High >= limit {
			if bar.Open >= limit {
				return bar.Open
			}
			return limit
		}
	}
	return 0
}
