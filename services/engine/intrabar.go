package engine

// Intrabar first-touch resolution. When a protective stop and a
// take-profit level are both touched within one bar, the winner is
// decided by a synthetic open -> nearer extremum -> other extremum ->
// close path.

// FirstTouchResult indicates which level was hit first.
type FirstTouchResult int

const (
	TouchNone FirstTouchResult = iota
	TouchTP
	TouchSL
)

// ResolveFirstTouchLong determines TP/SL hit order for a long position.
func ResolveFirstTouchLong(bar Bar, tp, sl float64) FirstTouchResult {
	both := bar.Low <= sl && bar.High >= tp
	if both {
		distHigh := abs(bar.High - bar.Open)
		distLow := abs(bar.Open - bar.Low)
		if distLow < distHigh {
			return TouchSL
		}
		return TouchTP
	}
	if bar.Low <= sl {
		return TouchSL
	}
	if bar.High >= tp {
		return TouchTP
	}
	return TouchNone
}

// ResolveFirstTouchShort mirrors the long logic for shorts.
func ResolveFirstTouchShort(bar Bar, tp, sl float64) FirstTouchResult {
	both := bar.High >= sl && bar.Low <= tp
	if both {
		distHigh := abs(bar.High - bar.Open)
		distLow := abs(bar.Open - bar.Low)
		if distHigh < distLow {
			return TouchSL
		}
		return TouchTP
	}
	if bar.High >= sl {
		return TouchSL
	}
	if bar.Low <= tp {
		return TouchTP
	}
	return TouchNone
}

// BuildSyntheticPath returns the ordered price touches assumed within a
// bar: open, nearer extremum, other extremum, close.
func BuildSyntheticPath(bar Bar) []float64 {
	path := []float64{bar.Open}
	if abs(bar.Open-bar.Low) < abs(bar.High-bar.Open) {
		path = append(path, bar.Low, bar.High)
	} else {
		path = append(path, bar.High, bar.Low)
	}
	return append(path, bar.Close)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
