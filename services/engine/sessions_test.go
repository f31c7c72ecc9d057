package engine

import (
	"testing"
	"time"
)

func testCalendar(t *testing.T, halfDays ...string) *SessionCalendar {
	t.Helper()
	cal, err := NewSessionCalendar(SessionConfig{
		Timezone:     "America/New_York",
		FirstBar:     "0930-0935",
		LastBar:      "1555-1600",
		EntryOne:     "0930-1130",
		EntryTwo:     "1330-1525",
		HalfDays:     halfDays,
		HalfDayClose: "1300",
	})
	if err != nil {
		t.Fatal(err)
	}
	return cal
}

func nyMillis(t *testing.T, value string) int64 {
	t.Helper()
	loc, _ := time.LoadLocation("America/New_York")
	tm, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatal(err)
	}
	return tm.UnixMilli()
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("0930-1130")
	if err != nil {
		t.Fatal(err)
	}
	if w.StartMin != 9*60+30 || w.EndMin != 11*60+30 {
		t.Fatalf("got %+v", w)
	}
	for _, bad := range []string{"", "0930", "0930-2500", "1130-0930", "9:30-11:30"} {
		if _, err := ParseWindow(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestClassifyWindows(t *testing.T) {
	cal := testCalendar(t)

	f := cal.Classify(nyMillis(t, "2026-03-02 09:30"))
	if !f.FirstBar || !f.EntryOne || f.EntryTwo || f.LastBar {
		t.Fatalf("open bar flags %+v", f)
	}
	// Lunch gap is in no window.
	f = cal.Classify(nyMillis(t, "2026-03-02 12:00"))
	if f.InAnyEntryWindow() || f.FirstBar || f.LastBar {
		t.Fatalf("lunch flags %+v", f)
	}
	f = cal.Classify(nyMillis(t, "2026-03-02 15:25"))
	if !f.EntryTwo {
		t.Fatalf("entry-two end inclusive, got %+v", f)
	}
	f = cal.Classify(nyMillis(t, "2026-03-02 15:26"))
	if f.InAnyEntryWindow() {
		t.Fatalf("past entry-two still open, got %+v", f)
	}
	f = cal.Classify(nyMillis(t, "2026-03-02 15:55"))
	if !f.LastBar {
		t.Fatalf("last-bar start missed, got %+v", f)
	}
}

func TestClassifyHalfDay(t *testing.T) {
	cal := testCalendar(t, "2026-11-27")

	f := cal.Classify(nyMillis(t, "2026-11-27 12:55"))
	if !f.HalfDay || f.HalfDayClose {
		t.Fatalf("before cutoff: %+v", f)
	}
	f = cal.Classify(nyMillis(t, "2026-11-27 13:00"))
	if !f.HalfDayClose {
		t.Fatalf("at cutoff: %+v", f)
	}
	f = cal.Classify(nyMillis(t, "2026-11-30 13:00"))
	if f.HalfDay || f.HalfDayClose {
		t.Fatalf("normal day flagged half: %+v", f)
	}
}

func TestDayKeyUsesSessionTimezone(t *testing.T) {
	cal := testCalendar(t)
	// 23:30 New York is already the next day in UTC.
	ts := nyMillis(t, "2026-03-02 23:30")
	if got := cal.DayKey(ts); got != "2026-03-02" {
		t.Fatalf("DayKey = %q, want 2026-03-02", got)
	}
}

func TestNewSessionCalendarRejectsBadConfig(t *testing.T) {
	_, err := NewSessionCalendar(SessionConfig{Timezone: "Mars/Olympus", FirstBar: "0930-0935",
		LastBar: "1555-1600", EntryOne: "0930-1130", EntryTwo: "1330-1525"})
	if err == nil {
		t.Fatal("bad timezone accepted")
	}
	_, err = NewSessionCalendar(SessionConfig{Timezone: "UTC", FirstBar: "0930-0935",
		LastBar: "1555-1600", EntryOne: "0930-1130", EntryTwo: "1330-1525",
		HalfDays: []string{"27-11-2026"}})
	if err == nil {
		t.Fatal("bad half-day date accepted")
	}
}
