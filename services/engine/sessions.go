package engine

// Session calendar: classifies a bar timestamp into the named intraday
// windows the strategy cares about. Pure lookups, safe to call
// speculatively.

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeWindow is a closed [Start, End] interval of local time-of-day,
// stored as minutes since midnight.
type TimeWindow struct {
	StartMin int
	EndMin   int
}

// Contains reports whether the minute-of-day m falls inside the window,
// inclusive on both ends.
func (w TimeWindow) Contains(m int) bool {
	return m >= w.StartMin && m <= w.EndMin
}

// ParseWindow parses "HHMM-HHMM" session strings, e.g. "0930-0935".
func ParseWindow(s string) (TimeWindow, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return TimeWindow{}, fmt.Errorf("session window %q: want HHMM-HHMM", s)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return TimeWindow{}, fmt.Errorf("session window %q: %w", s, err)
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return TimeWindow{}, fmt.Errorf("session window %q: %w", s, err)
	}
	if end < start {
		return TimeWindow{}, fmt.Errorf("session window %q: end before start", s)
	}
	return TimeWindow{StartMin: start, EndMin: end}, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return 0, fmt.Errorf("time %q: want HHMM", s)
	}
	hh, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	mm, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return hh*60 + mm, nil
}

// SessionFlags is the classification of one bar timestamp.
type SessionFlags struct {
	FirstBar     bool // first-bar window (session open)
	LastBar      bool // last-bar window (session close)
	EntryOne     bool // first trading-entry window
	EntryTwo     bool // second trading-entry window
	HalfDay      bool // date is in the half-day calendar
	HalfDayClose bool // half-day and at/after the early-close cutoff
}

// InAnyEntryWindow reports whether the bar may open new entries.
func (f SessionFlags) InAnyEntryWindow() bool { return f.EntryOne || f.EntryTwo }

// SessionCalendar evaluates bar timestamps against configured windows.
// Half-day dates come from an externally supplied calendar, not from
// business-day arithmetic.
type SessionCalendar struct {
	loc         *time.Location
	firstBar    TimeWindow
	lastBar     TimeWindow
	entryOne    TimeWindow
	entryTwo    TimeWindow
	halfDays    map[string]struct{} // "2006-01-02" in loc
	halfDayClos int                 // minutes since midnight
}

// SessionConfig carries the window strings for NewSessionCalendar.
type SessionConfig struct {
	Timezone     string   `yaml:"timezone"`
	FirstBar     string   `yaml:"first_bar"`
	LastBar      string   `yaml:"last_bar"`
	EntryOne     string   `yaml:"entry_one"`
	EntryTwo     string   `yaml:"entry_two"`
	HalfDays     []string `yaml:"half_days"`
	HalfDayClose string   `yaml:"half_day_close"` // HHMM cutoff
}

// NewSessionCalendar parses and validates the session configuration.
func NewSessionCalendar(cfg SessionConfig) (*SessionCalendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	first, err := ParseWindow(cfg.FirstBar)
	if err != nil {
		return nil, fmt.Errorf("first_bar: %w", err)
	}
	last, err := ParseWindow(cfg.LastBar)
	if err != nil {
		return nil, fmt.Errorf("last_bar: %w", err)
	}
	one, err := ParseWindow(cfg.EntryOne)
	if err != nil {
		return nil, fmt.Errorf("entry_one: %w", err)
	}
	two, err := ParseWindow(cfg.EntryTwo)
	if err != nil {
		return nil, fmt.Errorf("entry_two: %w", err)
	}
	cutoff := 13 * 60 // 1300 default early close
	if cfg.HalfDayClose != "" {
		cutoff, err = parseHHMM(cfg.HalfDayClose)
		if err != nil {
			return nil, fmt.Errorf("half_day_close: %w", err)
		}
	}
	days := make(map[string]struct{}, len(cfg.HalfDays))
	for _, d := range cfg.HalfDays {
		if _, err := time.ParseInLocation("2006-01-02", d, loc); err != nil {
			return nil, fmt.Errorf("half day %q: %w", d, err)
		}
		days[d] = struct{}{}
	}
	return &SessionCalendar{
		loc:         loc,
		firstBar:    first,
		lastBar:     last,
		entryOne:    one,
		entryTwo:    two,
		halfDays:    days,
		halfDayClos: cutoff,
	}, nil
}

// Location returns the calendar's timezone.
func (c *SessionCalendar) Location() *time.Location { return c.loc }

// Classify evaluates a bar timestamp (Unix ms) against all windows.
func (c *SessionCalendar) Classify(tsMillis int64) SessionFlags {
	t := time.UnixMilli(tsMillis).In(c.loc)
	m := t.Hour()*60 + t.Minute()
	_, half := c.halfDays[t.Format("2006-01-02")]
	return SessionFlags{
		FirstBar:     c.firstBar.Contains(m),
		LastBar:      c.lastBar.Contains(m),
		EntryOne:     c.entryOne.Contains(m),
		EntryTwo:     c.entryTwo.Contains(m),
		HalfDay:      half,
		HalfDayClose: half && m >= c.halfDayClos,
	}
}

// DayKey returns the calendar day of a bar in the session timezone,
// used for daily-state rollover.
func (c *SessionCalendar) DayKey(tsMillis int64) string {
	return time.UnixMilli(tsMillis).In(c.loc).Format("2006-01-02")
}
