package peaks

// Threshold is the midline of a window.
type Threshold struct {
	Min float64
	Max float64
	Mid float64
}

// NewThreshold computes the midline between lo and hi.
func NewThreshold(lo, hi float64) Threshold {
	return Threshold{Min: lo, Max: hi, Mid: (lo + hi) / 2}
}

// Amplitude is the peak-to-peak range.
func (t Threshold) Amplitude() float64 {
	return t.Max - t.Min
}

// Valid reports whether the window moved more than delta; flatter windows
// are treated as noise and never scanned.
func (t Threshold) Valid(delta float64) bool {
	return t.Amplitude() > delta
}

// Event is one detected step or heartbeat.
type Event struct {
	Timestamp int64 // ms
	Value     float64
}

// State is the detector's position in its ingest cycle.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateThresholdValid
	StateScanning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateThresholdValid:
		return "threshold_valid"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// recentSet remembers the last N accepted timestamps in a ring.
type recentSet struct {
	ring  []int64
	next  int
	count int
	index map[int64]int
}

func newRecentSet(capacity int) *recentSet {
	return &recentSet{
		ring:  make([]int64, capacity),
		index: make(map[int64]int, capacity),
	}
}

func (r *recentSet) contains(ts int64) bool {
	_, ok := r.index[ts]
	return ok
}

func (r *recentSet) add(ts int64) {
	if len(r.ring) == 0 {
		return
	}
	if r.count == len(r.ring) {
		old := r.ring[r.next]
		if r.index[old] <= 1 {
			delete(r.index, old)
		} else {
			r.index[old]--
		}
	} else {
		r.count++
	}
	r.ring[r.next] = ts
	r.index[ts]++
	r.next = (r.next + 1) % len(r.ring)
}

func (r *recentSet) clear() {
	clear(r.index)
	r.next = 0
	r.count = 0
}
