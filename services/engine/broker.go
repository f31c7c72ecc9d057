package engine

import "errors"

// Fill reports an executed order back to the strategy. The broker never
// mutates strategy position state; it only reports.
type Fill struct {
	OrderID OrderID
	Spec    OrderSpec
	Price   float64
	Ts      int64
}

// Broker is the minimal capability surface the strategy needs. The
// backtest-local SimBroker and a live implementation both satisfy it.
type Broker interface {
	Submit(spec OrderSpec) (OrderID, error)
	Cancel(id OrderID) error
	CancelGroup(group uint64)
	CancelAll()
}

// ErrOrderRejected is returned by Submit when the venue refuses the
// order. The strategy clears the corresponding pending state and keeps
// processing; rejection is never fatal to a run.
var ErrOrderRejected = errors.New("order rejected")

type simOrder struct {
	id         OrderID
	spec       OrderSpec
	activeFrom int // first bar index on which the order may fill
}

// SimBroker is the in-memory backtest implementation. Orders submitted
// while bar i is being processed become eligible on bar i+1, so an entry
// never exits on its own signal bar. Fills are produced in a
// deterministic order: entry stops in submission order, then protective
// orders per group with intrabar first-touch resolution.
type SimBroker struct {
	orders  []*simOrder
	nextID  OrderID
	barIdx  int
	rejects int // pending forced rejections, for failure-path tests
}

// NewSimBroker creates an empty simulated broker.
func NewSimBroker() *SimBroker { return &SimBroker{nextID: 1} }

// RejectNext forces the next n Submit calls to fail with
// ErrOrderRejected.
func (b *SimBroker) RejectNext(n int) { b.rejects += n }

// Submit registers an order for fill evaluation starting next bar.
func (b *SimBroker) Submit(spec OrderSpec) (OrderID, error) {
	if b.rejects > 0 {
		b.rejects--
		return 0, ErrOrderRejected
	}
	id := b.nextID
	b.nextID++
	b.orders = append(b.orders, &simOrder{id: id, spec: spec, activeFrom: b.barIdx + 1})
	return id, nil
}

// Cancel removes an order. Cancelling an unknown (already filled or
// cancelled) order is a no-op error the caller may ignore.
func (b *SimBroker) Cancel(id OrderID) error {
	for i, o := range b.orders {
		if o.id == id {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return nil
		}
	}
	return errors.New("unknown order")
}

// CancelGroup removes every order belonging to a position group.
func (b *SimBroker) CancelGroup(group uint64) {
	kept := b.orders[:0]
	for _, o := range b.orders {
		if o.spec.GroupID != group {
			kept = append(kept, o)
		}
	}
	b.orders = kept
}

// CancelAll removes every open order.
func (b *SimBroker) CancelAll() { b.orders = b.orders[:0] }

// OpenOrders returns the number of resting orders.
func (b *SimBroker) OpenOrders() int { return len(b.orders) }

// ProcessBar evaluates all resting orders against one bar and returns
// the fills in deterministic order. barIdx must increase by exactly one
// per call.
func (b *SimBroker) ProcessBar(barIdx int, bar Bar) []Fill {
	b.barIdx = barIdx
	var fills []Fill

	// Entry stops first, in submission order.
	for _, o := range b.orders {
		if o.spec.Kind != KindStopEntry || o.activeFrom > barIdx {
			continue
		}
		if ShouldTriggerStop(o.spec.Side, o.spec.Price, bar) {
			fills = append(fills, Fill{
				OrderID: o.id,
				Spec:    o.spec,
				Price:   FillPriceStopMarket(o.spec.Side, o.spec.Price, bar),
				Ts:      bar.Timestamp,
			})
		}
	}
	b.remove(fills)

	// Protective orders per group, first-touch resolved.
	for _, group := range b.groupsInOrder() {
		fills = append(fills, b.processGroup(group, barIdx, bar)...)
	}
	b.remove(fills)
	return fills
}

// groupsInOrder lists distinct protective groups by first appearance.
func (b *SimBroker) groupsInOrder() []uint64 {
	seen := make(map[uint64]bool)
	var groups []uint64
	for _, o := range b.orders {
		if o.spec.Kind == KindStopEntry {
			continue
		}
		if !seen[o.spec.GroupID] {
			seen[o.spec.GroupID] = true
			groups = append(groups, o.spec.GroupID)
		}
	}
	return groups
}

func (b *SimBroker) processGroup(group uint64, barIdx int, bar Bar) []Fill {
	var stop *simOrder
	var legs []*simOrder
	for _, o := range b.orders {
		if o.spec.GroupID != group || o.activeFrom > barIdx {
			continue
		}
		switch o.spec.Kind {
		case KindStopLoss:
			stop = o
		case KindTakeProfit:
			legs = append(legs, o)
		}
	}
	if stop == nil && len(legs) == 0 {
		return nil
	}

	exitSide := TradeSideSell
	long := true
	if stop != nil {
		long = stop.spec.Side == TradeSideSell // a long's stop sells
	} else if len(legs) > 0 {
		long = legs[0].spec.Side == TradeSideSell
	}
	if !long {
		exitSide = TradeSideBuy
	}

	stopTouched := stop != nil && ShouldTriggerStop(exitSide, stop.spec.Price, bar)
	var touched []*simOrder
	nearest := 0.0
	for _, l := range legs {
		if ShouldFillLimit(exitSide, l.spec.Price, bar) {
			touched = append(touched, l)
			if nearest == 0 || closerToOpen(bar, l.spec.Price, nearest) {
				nearest = l.spec.Price
			}
		}
	}

	stopFirst := false
	if stopTouched && len(touched) > 0 {
		if long {
			stopFirst = ResolveFirstTouchLong(bar, nearest, stop.spec.Price) == TouchSL
		} else {
			stopFirst = ResolveFirstTouchShort(bar, nearest, stop.spec.Price) == TouchSL
		}
	}

	var fills []Fill
	if stopTouched && (len(touched) == 0 || stopFirst) {
		return append(fills, Fill{
			OrderID: stop.id,
			Spec:    stop.spec,
			Price:   FillPriceStopMarket(exitSide, stop.spec.Price, bar),
			Ts:      bar.Timestamp,
		})
	}
	// Take-profit legs fill nearest-first; a touched stop fills after
	// them if quantity remains, which the strategy decides on callback.
	orderLegsByProximity(bar, touched)
	for _, l := range touched {
		fills = append(fills, Fill{
			OrderID: l.id,
			Spec:    l.spec,
			Price:   FillPriceLimit(exitSide, l.spec.Price, bar),
			Ts:      bar.Timestamp,
		})
	}
	if stopTouched && len(touched) > 0 && !stopFirst {
		fills = append(fills, Fill{
			OrderID: stop.id,
			Spec:    stop.spec,
			Price:   FillPriceStopMarket(exitSide, stop.spec.Price, bar),
			Ts:      bar.Timestamp,
		})
	}
	return fills
}

func closerToOpen(bar Bar, a, current float64) bool {
	return abs(a-bar.Open) < abs(current-bar.Open)
}

func orderLegsByProximity(bar Bar, legs []*simOrder) {
	// insertion sort; at most four legs
	for i := 1; i < len(legs); i++ {
		for j := i; j > 0 && abs(legs[j].spec.Price-bar.Open) < abs(legs[j-1].spec.Price-bar.Open); j-- {
			legs[j], legs[j-1] = legs[j-1], legs[j]
		}
	}
}

func (b *SimBroker) remove(fills []Fill) {
	if len(fills) == 0 {
		return
	}
	filled := make(map[OrderID]bool, len(fills))
	for _, f := range fills {
		filled[f.OrderID] = true
	}
	kept := b.orders[:0]
	for _, o := range b.orders {
		if !filled[o.id] {
			kept = append(kept, o)
		}
	}
	b.orders = kept
}
