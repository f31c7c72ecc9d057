package engine

import "testing"

func TestSimBrokerNoSameBarFill(t *testing.T) {
	b := NewSimBroker()
	_, err := b.Submit(OrderSpec{Kind: KindStopEntry, Side: TradeSideBuy, Price: 105, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	bar := Bar{Timestamp: 1, Open: 100, High: 106, Low: 99, Close: 104}
	if fills := b.ProcessBar(0, bar); len(fills) != 0 {
		t.Fatalf("order filled on its submission bar: %v", fills)
	}
	fills := b.ProcessBar(1, Bar{Timestamp: 2, Open: 100, High: 106, Low: 99, Close: 104})
	if len(fills) != 1 || fills[0].Price != 105 {
		t.Fatalf("fills = %+v", fills)
	}
	if b.OpenOrders() != 0 {
		t.Fatal("filled order still resting")
	}
}

func TestSimBrokerEntryFillsInSubmissionOrder(t *testing.T) {
	b := NewSimBroker()
	first, _ := b.Submit(OrderSpec{Kind: KindStopEntry, Side: TradeSideBuy, Price: 103, Quantity: 1})
	second, _ := b.Submit(OrderSpec{Kind: KindStopEntry, Side: TradeSideSell, Price: 97, Quantity: 1})
	fills := b.ProcessBar(1, Bar{Timestamp: 1, Open: 100, High: 106, Low: 95, Close: 100})
	if len(fills) != 2 {
		t.Fatalf("fills = %+v", fills)
	}
	if fills[0].OrderID != first || fills[1].OrderID != second {
		t.Fatal("entry fills out of submission order")
	}
}

func TestSimBrokerGroupStopFirst(t *testing.T) {
	b := NewSimBroker()
	stopID, _ := b.Submit(OrderSpec{Kind: KindStopLoss, Side: TradeSideSell, Price: 95, Quantity: 10, GroupID: 7})
	b.Submit(OrderSpec{Kind: KindTakeProfit, Side: TradeSideSell, Price: 105, Quantity: 10, GroupID: 7})

	// Open near the low: the synthetic path touches the stop first, so
	// the whole position stops out and the leg never fills.
	fills := b.ProcessBar(1, Bar{Timestamp: 1, Open: 96, High: 106, Low: 94, Close: 100})
	if len(fills) != 1 || fills[0].OrderID != stopID || fills[0].Price != 95 {
		t.Fatalf("fills = %+v", fills)
	}
}

func TestSimBrokerGroupTakeProfitFirst(t *testing.T) {
	b := NewSimBroker()
	stopID, _ := b.Submit(OrderSpec{Kind: KindStopLoss, Side: TradeSideSell, Price: 95, Quantity: 10, GroupID: 7})
	tpID, _ := b.Submit(OrderSpec{Kind: KindTakeProfit, Side: TradeSideSell, Price: 105, Quantity: 5, GroupID: 7})

	// Open near the high: the leg fills first, then the stop takes
	// whatever remains.
	fills := b.ProcessBar(1, Bar{Timestamp: 1, Open: 104, High: 106, Low: 94, Close: 95})
	if len(fills) != 2 {
		t.Fatalf("fills = %+v", fills)
	}
	if fills[0].OrderID != tpID || fills[1].OrderID != stopID {
		t.Fatal("take profit should fill before the stop")
	}
}

func TestSimBrokerLegsFillNearestOpenFirst(t *testing.T) {
	b := NewSimBroker()
	far, _ := b.Submit(OrderSpec{Kind: KindTakeProfit, Side: TradeSideSell, Price: 105, Quantity: 1, GroupID: 3, Leg: 1})
	near, _ := b.Submit(OrderSpec{Kind: KindTakeProfit, Side: TradeSideSell, Price: 103, Quantity: 1, GroupID: 3, Leg: 0})
	fills := b.ProcessBar(1, Bar{Timestamp: 1, Open: 100, High: 106, Low: 99, Close: 104})
	if len(fills) != 2 {
		t.Fatalf("fills = %+v", fills)
	}
	if fills[0].OrderID != near || fills[1].OrderID != far {
		t.Fatal("legs not ordered by proximity to the open")
	}
}

func TestSimBrokerCancelGroup(t *testing.T) {
	b := NewSimBroker()
	b.Submit(OrderSpec{Kind: KindStopLoss, Side: TradeSideSell, Price: 95, Quantity: 10, GroupID: 7})
	b.Submit(OrderSpec{Kind: KindTakeProfit, Side: TradeSideSell, Price: 105, Quantity: 10, GroupID: 7})
	keep, _ := b.Submit(OrderSpec{Kind: KindStopEntry, Side: TradeSideBuy, Price: 110, Quantity: 1, GroupID: 8})
	b.CancelGroup(7)
	if b.OpenOrders() != 1 {
		t.Fatalf("open orders = %d, want 1", b.OpenOrders())
	}
	if err := b.Cancel(keep); err != nil {
		t.Fatal(err)
	}
	if err := b.Cancel(keep); err == nil {
		t.Fatal("cancelling twice should error")
	}
}

func TestSimBrokerRejectNext(t *testing.T) {
	b := NewSimBroker()
	b.RejectNext(1)
	if _, err := b.Submit(OrderSpec{Kind: KindStopEntry}); err != ErrOrderRejected {
		t.Fatalf("err = %v", err)
	}
	if _, err := b.Submit(OrderSpec{Kind: KindStopEntry, Price: 1, Quantity: 1}); err != nil {
		t.Fatalf("second submit rejected: %v", err)
	}
}
