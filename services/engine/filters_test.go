package engine

import (
	"math"
	"testing"
)

func TestADRTrackerNeedsFullWindow(t *testing.T) {
	adr := NewADRTracker(3)
	adr.PushDay(102, 100)
	adr.PushDay(102, 100)
	if _, ok := adr.ADRPercent(); ok {
		t.Fatal("partial window reported ok")
	}
	adr.PushDay(102, 100)
	pct, ok := adr.ADRPercent()
	if !ok || math.Abs(pct-2) > 1e-9 {
		t.Fatalf("ADR = %v %v, want 2", pct, ok)
	}
	// Window slides: a wider day raises the mean.
	adr.PushDay(108, 100)
	pct, _ = adr.ADRPercent()
	if math.Abs(pct-4) > 1e-9 {
		t.Fatalf("ADR after slide = %v, want 4", pct)
	}
}

func TestADRTrackerIgnoresCorruptDays(t *testing.T) {
	adr := NewADRTracker(2)
	adr.PushDay(100, 0)
	adr.PushDay(90, 100)
	if _, ok := adr.ADRPercent(); ok {
		t.Fatal("corrupt days filled the window")
	}
}

func TestVolumeSMA(t *testing.T) {
	sma := NewVolumeSMA(3)
	sma.Push(100)
	sma.Push(200)
	if _, ok := sma.Average(); ok {
		t.Fatal("partial window reported ok")
	}
	sma.Push(300)
	avg, ok := sma.Average()
	if !ok || avg != 200 {
		t.Fatalf("avg = %v %v", avg, ok)
	}
	rv, ok := sma.RelativeVolume(400)
	if !ok || rv != 2 {
		t.Fatalf("rvol = %v %v", rv, ok)
	}
	sma.Push(600) // evicts 100, avg now (200+300+600)/3
	avg, _ = sma.Average()
	if math.Abs(avg-1100.0/3) > 1e-9 {
		t.Fatalf("avg after evict = %v", avg)
	}
}

func TestUpCloseVolumeRecords(t *testing.T) {
	day := int64(24 * 3600 * 1000)
	up := NewUpCloseVolumeTracker(7 * day)

	ever, rolling := up.Observe(Bar{Timestamp: 0, Open: 10, Close: 11, Volume: 100})
	if !ever || !rolling {
		t.Fatal("first up-close bar is not a record")
	}
	// Down close never sets a record regardless of volume.
	ever, rolling = up.Observe(Bar{Timestamp: day, Open: 10, Close: 9, Volume: 9999})
	if ever || rolling {
		t.Fatal("down-close bar set a record")
	}
	ever, rolling = up.Observe(Bar{Timestamp: 2 * day, Open: 10, Close: 11, Volume: 50})
	if ever || rolling {
		t.Fatal("smaller up volume set a record")
	}
	// After the window expires the old maximum, a mid-size volume is a
	// new rolling record but not an all-time one.
	ever, rolling = up.Observe(Bar{Timestamp: 10 * day, Open: 10, Close: 11, Volume: 60})
	if ever {
		t.Fatal("rolling record counted as all-time")
	}
	if !rolling {
		t.Fatal("expired window still blocking rolling record")
	}
}
