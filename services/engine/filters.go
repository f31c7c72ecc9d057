package engine

// Rolling range and volume filters. All updates are incremental, O(1) or
// O(window), with no backward rescans over the bar series.

// ADRTracker maintains a rolling window of daily high/low ratios and
// exposes the average daily range as a percentage.
type ADRTracker struct {
	ratios []float64
	head   int
	count  int
	sum    float64
}

// NewADRTracker creates a tracker over the last period completed days.
func NewADRTracker(period int) *ADRTracker {
	if period < 1 {
		period = 1
	}
	return &ADRTracker{ratios: make([]float64, period)}
}

// PushDay records a completed day's high and low. Days with a
// non-positive low are ignored rather than poisoning the average.
func (t *ADRTracker) PushDay(high, low float64) {
	if low <= 0 || high < low {
		return
	}
	ratio := high / low
	if t.count == len(t.ratios) {
		t.sum -= t.ratios[t.head]
	} else {
		t.count++
	}
	t.ratios[t.head] = ratio
	t.head = (t.head + 1) % len(t.ratios)
	t.sum += ratio
}

// ADRPercent returns 100*(mean(high/low)-1). ok is false until the
// window is full; gates that depend on ADR treat that as "not satisfied".
func (t *ADRTracker) ADRPercent() (float64, bool) {
	if t.count < len(t.ratios) {
		return 0, false
	}
	return 100 * (t.sum/float64(t.count) - 1), true
}

// VolumeSMA is a simple moving average over the last period bar volumes.
type VolumeSMA struct {
	vals  []float64
	head  int
	count int
	sum   float64
}

// NewVolumeSMA creates a rolling average over period bars.
func NewVolumeSMA(period int) *VolumeSMA {
	if period < 1 {
		period = 1
	}
	return &VolumeSMA{vals: make([]float64, period)}
}

// Push records one bar's volume.
func (s *VolumeSMA) Push(v float64) {
	if s.count == len(s.vals) {
		s.sum -= s.vals[s.head]
	} else {
		s.count++
	}
	s.vals[s.head] = v
	s.head = (s.head + 1) % len(s.vals)
	s.sum += v
}

// Average returns the mean volume. ok is false until the window is full.
func (s *VolumeSMA) Average() (float64, bool) {
	if s.count < len(s.vals) {
		return 0, false
	}
	return s.sum / float64(s.count), true
}

// RelativeVolume returns v divided by the rolling average. ok is false
// when the window is not full or the average is zero.
func (s *VolumeSMA) RelativeVolume(v float64) (float64, bool) {
	avg, ok := s.Average()
	if !ok || avg <= 0 {
		return 0, false
	}
	return v / avg, true
}

// UpCloseVolumeTracker answers "is this the largest up-close volume
// seen?" both all-time and within a rolling time window. An up-close bar
// is one that closes above its open.
type UpCloseVolumeTracker struct {
	windowMs int64
	allTime  float64
	// monotonic deque of (ts, volume), decreasing volume from front
	ts   []int64
	vols []float64
}

// NewUpCloseVolumeTracker creates a tracker whose rolling comparison
// spans windowMs milliseconds (e.g. N weeks).
func NewUpCloseVolumeTracker(windowMs int64) *UpCloseVolumeTracker {
	return &UpCloseVolumeTracker{windowMs: windowMs}
}

// Observe records a bar and reports whether its volume set a new
// all-time and/or rolling-window maximum among up-close bars. Bars that
// do not close up never set a record and are not stored.
func (t *UpCloseVolumeTracker) Observe(b Bar) (newAllTime, newRolling bool) {
	if b.Close <= b.Open {
		t.expire(b.Timestamp)
		return false, false
	}
	t.expire(b.Timestamp)

	newAllTime = b.Volume > t.allTime
	if newAllTime {
		t.allTime = b.Volume
	}
	newRolling = len(t.vols) == 0 || b.Volume > t.vols[0]

	// maintain decreasing deque
	for len(t.vols) > 0 && t.vols[len(t.vols)-1] <= b.Volume {
		t.vols = t.vols[:len(t.vols)-1]
		t.ts = t.ts[:len(t.ts)-1]
	}
	t.ts = append(t.ts, b.Timestamp)
	t.vols = append(t.vols, b.Volume)
	return newAllTime, newRolling
}

func (t *UpCloseVolumeTracker) expire(now int64) {
	cut := now - t.windowMs
	i := 0
	for i < len(t.ts) && t.ts[i] < cut {
		i++
	}
	if i > 0 {
		t.ts = t.ts[i:]
		t.vols = t.vols[i:]
	}
}
