package engine

import "testing"

func TestSplitLegQuantitiesRemainderToLastLeg(t *testing.T) {
	q := SplitLegQuantities(10, [MaxTakeProfitLegs]float64{25, 25, 25, 25})
	want := [MaxTakeProfitLegs]float64{2, 2, 2, 4}
	if q != want {
		t.Fatalf("got %v, want %v", q, want)
	}
	sum := 0.0
	for _, v := range q {
		sum += v
	}
	if sum != 10 {
		t.Fatalf("leg sum %v != 10", sum)
	}
}

func TestSplitLegQuantitiesSingleShare(t *testing.T) {
	q := SplitLegQuantities(1, [MaxTakeProfitLegs]float64{25, 25, 25, 25})
	if q != ([MaxTakeProfitLegs]float64{0, 0, 0, 1}) {
		t.Fatalf("got %v", q)
	}
}

func TestSplitLegQuantitiesGatedLegs(t *testing.T) {
	q := SplitLegQuantities(9, [MaxTakeProfitLegs]float64{50, 0, 50, 0})
	if q != ([MaxTakeProfitLegs]float64{4, 0, 5, 0}) {
		t.Fatalf("got %v", q)
	}
}

func TestReduceForLegRejectsDoubleFill(t *testing.T) {
	p := &OpenPosition{Quantity: 10, Remaining: 10,
		Legs: []TakeProfitLeg{{Price: 105, Quantity: 4}, {Price: 110, Quantity: 6}}}
	if err := p.ReduceForLeg(0); err != nil {
		t.Fatal(err)
	}
	if p.Remaining != 6 {
		t.Fatalf("remaining = %v", p.Remaining)
	}
	if err := p.ReduceForLeg(0); err == nil {
		t.Fatal("double fill accepted")
	}
	if err := p.ReduceForLeg(5); err == nil {
		t.Fatal("unknown leg accepted")
	}
	if p.LegQuantitySum() != p.Quantity {
		t.Fatalf("leg sum %v != entry qty %v", p.LegQuantitySum(), p.Quantity)
	}
}

func TestMigrateStopOnceAndOnlyFavorably(t *testing.T) {
	p := &OpenPosition{Side: SideLong, EntryPrice: 100, Stop: 98, StopOrig: 98, MoveStopTarget: 100}
	if !p.MigrateStop() {
		t.Fatal("favorable migration refused")
	}
	if p.Stop != 100 || !p.MoveStopDone {
		t.Fatalf("stop = %v done = %v", p.Stop, p.MoveStopDone)
	}
	if p.MigrateStop() {
		t.Fatal("second migration accepted")
	}

	// Target below the current stop never moves a long's stop down.
	p = &OpenPosition{Side: SideLong, EntryPrice: 100, Stop: 99, StopOrig: 99, MoveStopTarget: 98}
	if p.MigrateStop() {
		t.Fatal("adverse migration accepted")
	}
	if p.Stop != 99 {
		t.Fatalf("stop moved adversely to %v", p.Stop)
	}
}

func TestRMultipleUsesOriginalStop(t *testing.T) {
	p := &OpenPosition{Side: SideLong, EntryPrice: 100, Stop: 101, StopOrig: 98}
	if r := p.RMultiple(104); r != 2 {
		t.Fatalf("R = %v, want 2 against the original stop", r)
	}
	short := &OpenPosition{Side: SideShort, EntryPrice: 100, StopOrig: 102}
	if r := short.RMultiple(96); r != 2 {
		t.Fatalf("short R = %v, want 2", r)
	}
}

func TestSizerQuantity(t *testing.T) {
	s := RiskSizer{FirstTradeRisk: 1000, NextTradeRisk: 500}
	if q := s.Quantity(0, 100, 98); q != 500 {
		t.Fatalf("first entry qty = %v, want 500", q)
	}
	if q := s.Quantity(1, 100, 98); q != 250 {
		t.Fatalf("second entry qty = %v, want 250", q)
	}
	// A budget smaller than one unit's risk still buys one unit.
	tiny := RiskSizer{FirstTradeRisk: 1, NextTradeRisk: 1}
	if q := tiny.Quantity(0, 100, 90); q != 1 {
		t.Fatalf("tiny budget qty = %v, want 1", q)
	}
	if q := s.Quantity(0, 100, 100); q != 0 {
		t.Fatalf("zero distance qty = %v, want 0", q)
	}
}
