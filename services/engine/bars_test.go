package engine

import (
	"errors"
	"testing"
)

func TestValidateBarRejectsOutOfOrder(t *testing.T) {
	b := Bar{Timestamp: 1000, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10}
	if err := ValidateBar(b, 1000); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("want ErrOutOfOrder, got %v", err)
	}
	if err := ValidateBar(b, 500); err != nil {
		t.Fatalf("ordered bar rejected: %v", err)
	}
}

func TestValidateBarRejectsBadPrices(t *testing.T) {
	b := Bar{Timestamp: 1, Open: 5, High: 4, Low: 6, Close: 5, Volume: 10}
	if err := ValidateBar(b, 0); !errors.Is(err, ErrInvalidBar) {
		t.Fatalf("want ErrInvalidBar, got %v", err)
	}
	b = Bar{Timestamp: 1, Open: 5, High: 6, Low: 4, Close: 5}
	if err := ValidateBar(b, 0); !errors.Is(err, ErrZeroVolume) {
		t.Fatalf("want ErrZeroVolume, got %v", err)
	}
}

func TestIsInsideBarStrict(t *testing.T) {
	prev := Bar{High: 110, Low: 100}
	if !IsInsideBar(Bar{High: 109, Low: 101}, prev) {
		t.Fatal("strictly contained bar not inside")
	}
	// Touching either extreme does not count.
	if IsInsideBar(Bar{High: 110, Low: 101}, prev) {
		t.Fatal("equal high counted as inside")
	}
	if IsInsideBar(Bar{High: 109, Low: 100}, prev) {
		t.Fatal("equal low counted as inside")
	}
}

func TestHistoryPrevious(t *testing.T) {
	h := NewHistory(3)
	if _, ok := h.Previous(0); ok {
		t.Fatal("empty history returned a bar")
	}
	for i := int64(1); i <= 5; i++ {
		h.Push(Bar{Timestamp: i})
	}
	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
	b, ok := h.Previous(0)
	if !ok || b.Timestamp != 5 {
		t.Fatalf("Previous(0) = %v %v, want ts 5", b.Timestamp, ok)
	}
	b, _ = h.Previous(2)
	if b.Timestamp != 3 {
		t.Fatalf("Previous(2) = %d, want 3", b.Timestamp)
	}
	if _, ok := h.Previous(3); ok {
		t.Fatal("lookback past capacity returned a bar")
	}
}

func TestRangePercent(t *testing.T) {
	r, ok := Bar{High: 102, Low: 100}.RangePercent()
	if !ok || r != 2 {
		t.Fatalf("got %v %v, want 2", r, ok)
	}
	if _, ok := (Bar{High: 1, Low: 0}).RangePercent(); ok {
		t.Fatal("zero low reported ok")
	}
}
