package valuemetric

// Aggregation reduces the contributions of one window to a single value.
type Aggregation string

const (
	AggSum Aggregation = "sum"
	AggMin Aggregation = "min"
	AggMax Aggregation = "max"
	AggAvg Aggregation = "avg"
)

func (a Aggregation) valid() bool {
	switch a {
	case AggSum, AggMin, AggMax, AggAvg:
		return true
	}
	return false
}

// reduce folds xs, which must not be empty.
func (a Aggregation) reduce(xs []float64) float64 {
	out := xs[0]
	switch a {
	case AggMin:
		for _, x := range xs[1:] {
			out = min(out, x)
		}
	case AggMax:
		for _, x := range xs[1:] {
			out = max(out, x)
		}
	default:
		for _, x := range xs[1:] {
			out += x
		}
		if a == AggAvg {
			out /= float64(len(xs))
		}
	}
	return out
}

// interval is the accumulation state of one slice for one window.
//
// Push metrics append absolute values. Pull metrics append the delta of each
// closed (start, end) reading pair; at most one pair is open at a time.
type interval struct {
	contribs []float64

	open bool
	base float64

	// tainted suppresses the whole window for this slice.
	tainted bool

	// seen is set once the slice received any reading in the window.
	seen bool
}

func (iv *interval) add(v float64) {
	iv.contribs = append(iv.contribs, v)
	iv.seen = true
}

func (iv *interval) openAt(v float64) {
	iv.open = true
	iv.base = v
	iv.seen = true
}

// closeAt ends the open pair, if any, with reading v. A decreasing reading
// taints the interval.
func (iv *interval) closeAt(v float64) {
	iv.seen = true
	if !iv.open {
		return
	}
	iv.open = false
	if v < iv.base {
		iv.tainted = true
		return
	}
	iv.contribs = append(iv.contribs, v-iv.base)
}

// taint marks the window unreliable and drops the open pair.
func (iv *interval) taint() {
	iv.tainted = true
	iv.open = false
}

// value returns the aggregated window value. ok is false when the interval is
// tainted or received no contribution.
func (iv *interval) value(agg Aggregation) (v float64, ok bool) {
	if iv.tainted || len(iv.contribs) == 0 {
		return 0, false
	}
	return agg.reduce(iv.contribs), true
}
