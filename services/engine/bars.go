package engine

import (
	"errors"
	"fmt"
	"time"
)

// Bar represents a single OHLCV bar. Timestamp is Unix milliseconds (UTC).
type Bar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the bar timestamp as a time.Time in the given location.
func (b Bar) Time(loc *time.Location) time.Time {
	return time.UnixMilli(b.Timestamp).In(loc)
}

// RangePercent returns 100*(high-low)/low, with ok=false when the low is
// not positive (flat or corrupt bar).
func (b Bar) RangePercent() (float64, bool) {
	if b.Low <= 0 {
		return 0, false
	}
	return 100 * (b.High - b.Low) / b.Low, true
}

var (
	ErrOutOfOrder = errors.New("bar timestamp not after previous bar")
	ErrInvalidBar = errors.New("bar has invalid prices")
	ErrZeroVolume = errors.New("bar has non-positive volume")
)

// ValidateBar rejects malformed bars at the feed boundary so they never
// reach the strategy state machine. prevTs is the timestamp of the last
// accepted bar, or 0 when none has been accepted yet.
func ValidateBar(b Bar, prevTs int64) error {
	if prevTs != 0 && b.Timestamp <= prevTs {
		return fmt.Errorf("%w: %d <= %d", ErrOutOfOrder, b.Timestamp, prevTs)
	}
	if b.High < b.Low || b.Open <= 0 || b.Close <= 0 || b.Low <= 0 {
		return fmt.Errorf("%w: o=%g h=%g l=%g c=%g", ErrInvalidBar, b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume <= 0 {
		return fmt.Errorf("%w: v=%g", ErrZeroVolume, b.Volume)
	}
	return nil
}

// IsInsideBar reports whether cur's range is strictly contained within
// prev's range.
func IsInsideBar(cur, prev Bar) bool {
	return cur.High < prev.High && cur.Low > prev.Low
}

// History is a fixed-capacity ring buffer over the most recent bars.
// It replaces implicit negative indexing (data[-1], data[-2]) with named
// lookback so branches that depend on "the bar two steps back" stay
// auditable.
type History struct {
	buf   []Bar
	head  int
	count int
}

// NewHistory allocates a ring buffer holding the last capacity bars.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]Bar, capacity)}
}

// Push appends a bar, evicting the oldest when full.
func (h *History) Push(b Bar) {
	h.buf[h.head] = b
	h.head = (h.head + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Len returns the number of bars currently held.
func (h *History) Len() int { return h.count }

// Previous returns the bar n steps back: Previous(0) is the most recent
// pushed bar, Previous(1) the one before it. ok is false when fewer than
// n+1 bars have been pushed.
func (h *History) Previous(n int) (Bar, bool) {
	if n < 0 || n >= h.count {
		return Bar{}, false
	}
	idx := (h.head - 1 - n + 2*len(h.buf)) % len(h.buf)
	return h.buf[idx], true
}
