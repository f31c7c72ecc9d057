package engine

import "testing"

func TestStopMarketFillsAtTriggerOrGap(t *testing.T) {
	bar := Bar{Open: 100, High: 110, Low: 95, Close: 105}
	if p := FillPriceStopMarket(TradeSideBuy, 104, bar); p != 104 {
		t.Fatalf("buy stop inside bar = %v, want 104", p)
	}
	// Bar opens above the buy stop: fill at the open, never better.
	if p := FillPriceStopMarket(TradeSideBuy, 98, bar); p != 100 {
		t.Fatalf("gapped buy stop = %v, want open 100", p)
	}
	if p := FillPriceStopMarket(TradeSideSell, 97, bar); p != 97 {
		t.Fatalf("sell stop inside bar = %v, want 97", p)
	}
	if p := FillPriceStopMarket(TradeSideSell, 103, bar); p != 100 {
		t.Fatalf("gapped sell stop = %v, want open 100", p)
	}
}

func TestLimitFillsAtLimitOrGap(t *testing.T) {
	bar := Bar{Open: 100, High: 110, Low: 95, Close: 105}
	if p := FillPriceLimit(TradeSideSell, 108, bar); p != 108 {
		t.Fatalf("sell limit inside bar = %v, want 108", p)
	}
	// Bar opens beyond the sell limit: fill at the better open.
	if p := FillPriceLimit(TradeSideSell, 99, bar); p != 100 {
		t.Fatalf("gapped sell limit = %v, want open 100", p)
	}
	if p := FillPriceLimit(TradeSideBuy, 111, bar); p != 100 {
		t.Fatalf("gapped buy limit = %v, want open 100", p)
	}
}

func TestShouldTriggerStop(t *testing.T) {
	bar := Bar{Open: 100, High: 110, Low: 95, Close: 105}
	if !ShouldTriggerStop(TradeSideBuy, 110, bar) {
		t.Fatal("buy stop at the high not triggered")
	}
	if ShouldTriggerStop(TradeSideBuy, 110.01, bar) {
		t.Fatal("buy stop above the high triggered")
	}
	if !ShouldTriggerStop(TradeSideSell, 95, bar) {
		t.Fatal("sell stop at the low not triggered")
	}
}

func TestFirstTouchBothSidesTouched(t *testing.T) {
	// Open nearer the low: the synthetic path visits the low first.
	bar := Bar{Open: 97, High: 110, Low: 95, Close: 108}
	if ResolveFirstTouchLong(bar, 108, 96) != TouchSL {
		t.Fatal("long: low-first path should stop out")
	}
	// Open nearer the high: the path visits the high first.
	bar = Bar{Open: 108, High: 110, Low: 95, Close: 96}
	if ResolveFirstTouchLong(bar, 109, 96) != TouchTP {
		t.Fatal("long: high-first path should take profit")
	}
	if ResolveFirstTouchShort(bar, 96, 109) != TouchSL {
		t.Fatal("short: high-first path should stop out")
	}
}

func TestBuildSyntheticPath(t *testing.T) {
	bar := Bar{Open: 97, High: 110, Low: 95, Close: 108}
	path := BuildSyntheticPath(bar)
	want := []float64{97, 95, 110, 108}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
}
