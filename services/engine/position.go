package engine

import "fmt"

// PositionSide is the direction of an open position.
type PositionSide int

const (
	SideFlat PositionSide = iota
	SideLong
	SideShort
)

func (s PositionSide) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// EntrySide converts the position direction into the order side that
// opens it.
func (s PositionSide) EntrySide() TradeSide {
	if s == SideShort {
		return TradeSideSell
	}
	return TradeSideBuy
}

// ExitSide converts the position direction into the order side that
// closes it.
func (s PositionSide) ExitSide() TradeSide {
	if s == SideShort {
		return TradeSideBuy
	}
	return TradeSideSell
}

// MaxTakeProfitLegs is the number of scaled take-profit legs a position
// may carry.
const MaxTakeProfitLegs = 4

// TakeProfitLeg is one scaled partial-exit target.
type TakeProfitLeg struct {
	Price    float64
	Quantity float64
	Filled   bool
}

// PendingEntry is an unfilled stop entry plus the protective levels that
// will be attached when it fills.
type PendingEntry struct {
	Side        PositionSide
	Trigger     float64
	Stop        float64
	TakeProfits [MaxTakeProfitLegs]float64 // 0 means the leg is gated out
	Quantity    float64
	BarIndex    int // bar on which the order was submitted
	Age         int // bars since submission
	OrderID     OrderID
	GroupID     uint64
}

// OpenPosition is a filled entry with its mutable protective state. It
// is owned exclusively by the strategy; the broker only reports fills.
type OpenPosition struct {
	Side          PositionSide
	EntryPrice    float64
	EntryTime     int64
	EntryBarIndex int
	Quantity      float64 // original entry quantity
	Remaining     float64
	Stop          float64 // mutable, see MigrateStop
	StopOrig      float64
	Legs          []TakeProfitLeg
	GroupID       uint64

	MoveStopTrigger float64
	MoveStopTarget  float64
	MoveStopDone    bool
}

// SplitLegQuantities divides total into per-leg quantities according to
// percents (summing to at most 100). The remainder after rounding is
// absorbed by the last active leg so the leg sum always equals total.
func SplitLegQuantities(total float64, percents [MaxTakeProfitLegs]float64) [MaxTakeProfitLegs]float64 {
	var out [MaxTakeProfitLegs]float64
	last := -1
	assigned := 0.0
	for i, p := range percents {
		if p <= 0 {
			continue
		}
		q := float64(int64(total * p / 100))
		out[i] = q
		assigned += q
		last = i
	}
	if last >= 0 {
		out[last] += total - assigned
	}
	return out
}

// LegQuantitySum returns filled-or-pending leg quantity plus the
// remaining open quantity, which must always equal the entry quantity.
func (p *OpenPosition) LegQuantitySum() float64 {
	sum := 0.0
	for _, l := range p.Legs {
		if l.Filled {
			sum += l.Quantity
		}
	}
	return sum + p.Remaining
}

// ReduceForLeg marks a take-profit leg filled and reduces the open
// quantity. It errors on unknown or already-filled legs so double fill
// reports cannot corrupt the books.
func (p *OpenPosition) ReduceForLeg(leg int) error {
	if leg < 0 || leg >= len(p.Legs) {
		return fmt.Errorf("take-profit leg %d out of range", leg)
	}
	l := &p.Legs[leg]
	if l.Filled {
		return fmt.Errorf("take-profit leg %d already filled", leg)
	}
	l.Filled = true
	p.Remaining -= l.Quantity
	if p.Remaining < 0 {
		p.Remaining = 0
	}
	return nil
}

// Flat reports whether all quantity has been exited.
func (p *OpenPosition) Flat() bool { return p.Remaining <= 0 }

// Risk returns the per-share dollar risk between entry and the original
// stop.
func (p *OpenPosition) Risk() float64 { return abs(p.EntryPrice - p.StopOrig) }

// MigrateStop moves the stop to the move-stop target, at most once per
// position. The stop never moves adversely: for longs it only ratchets
// up, for shorts only down. Returns true when a migration happened.
func (p *OpenPosition) MigrateStop() bool {
	if p.MoveStopDone || p.MoveStopTarget == 0 {
		return false
	}
	p.MoveStopDone = true
	if p.Side == SideLong {
		if p.MoveStopTarget > p.Stop {
			p.Stop = p.MoveStopTarget
			return true
		}
	} else {
		if p.MoveStopTarget < p.Stop {
			p.Stop = p.MoveStopTarget
			return true
		}
	}
	return false
}

// RMultiple expresses a realized exit against the initial risk.
func (p *OpenPosition) RMultiple(exitPrice float64) float64 {
	risk := p.Risk()
	if risk <= 0 {
		return 0
	}
	if p.Side == SideLong {
		return (exitPrice - p.EntryPrice) / risk
	}
	return (p.EntryPrice - exitPrice) / risk
}

// PnL returns the realized dollar P&L for qty exited at exitPrice.
func (p *OpenPosition) PnL(exitPrice, qty float64) float64 {
	if p.Side == SideLong {
		return (exitPrice - p.EntryPrice) * qty
	}
	return (p.EntryPrice - exitPrice) * qty
}
