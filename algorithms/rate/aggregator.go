// Package rate turns detected event timestamps into a trailing-window rate.
package rate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Aggregator keeps the event timestamps of a trailing window. Its length is
// the rate: with a 60 s window it reads directly as events per minute.
//
// The window ends at the newest queued event, so a query made between
// events reports the rate as of the last detection. Once a whole window
// passes without any event the queue empties.
//
// Until a full window has elapsed since the first Evict the count understates
// the long-run rate; WarmingUp reports that period. Consumers should show the
// value as provisional rather than treat it as an error.
type Aggregator struct {
	window int64 // ms

	queue []int64
	head  int

	origin    int64
	hasOrigin bool
}

// NewAggregator creates an aggregator over a trailing window of windowMs.
func NewAggregator(windowMs int64) (*Aggregator, error) {
	if windowMs <= 0 {
		return nil, fmt.Errorf("rate window must be positive, got %dms", windowMs)
	}
	return &Aggregator{window: windowMs}, nil
}

// Window returns the trailing window in ms.
func (a *Aggregator) Window() int64 {
	return a.window
}

// Add queues an event timestamp.
func (a *Aggregator) Add(timestamp int64) {
	a.queue = append(a.queue, timestamp)
}

// Evict drops timestamps more than one window older than the newest queued
// event, or every timestamp once now is more than a window past the newest.
// It returns how many were dropped. The first call fixes the warm-up origin.
func (a *Aggregator) Evict(now int64) int {
	if !a.hasOrigin {
		a.origin, a.hasOrigin = now, true
	}
	if a.Len() == 0 {
		return 0
	}

	newest := a.queue[len(a.queue)-1]
	if now-newest > a.window {
		removed := a.Len()
		a.head = len(a.queue)
		a.compact()
		return removed
	}

	removed := 0
	for a.Len() > 0 && newest-a.queue[a.head] > a.window {
		a.head++
		removed++
	}
	a.compact()
	return removed
}

func (a *Aggregator) compact() {
	if a.head == len(a.queue) {
		a.queue = a.queue[:0]
		a.head = 0
		return
	}
	if a.head > 64 && a.head*2 >= len(a.queue) {
		n := copy(a.queue, a.queue[a.head:])
		a.queue = a.queue[:n]
		a.head = 0
	}
}

// Len is the number of queued timestamps.
func (a *Aggregator) Len() int {
	return len(a.queue) - a.head
}

// CurrentRate returns the number of events in the window as of the last Evict.
func (a *Aggregator) CurrentRate() int {
	return a.Len()
}

// WarmingUp reports whether less than one window has elapsed since the first
// Evict, i.e. whether CurrentRate is still biased low.
func (a *Aggregator) WarmingUp(now int64) bool {
	return !a.hasOrigin || now-a.origin < a.window
}

// Timestamps returns a copy of the queued timestamps, oldest first.
func (a *Aggregator) Timestamps() []int64 {
	out := make([]int64, a.Len())
	copy(out, a.queue[a.head:])
	return out
}

// Intervals returns the gaps (ms) between consecutive queued events.
func (a *Aggregator) Intervals() []float64 {
	live := a.queue[a.head:]
	if len(live) < 2 {
		return nil
	}
	out := make([]float64, len(live)-1)
	for i := 1; i < len(live); i++ {
		out[i-1] = float64(live[i] - live[i-1])
	}
	return out
}

// IntervalRate projects the mean inter-event interval onto the window, which
// is not biased during warm-up. It also returns the interval standard
// deviation in ms. ok is false with fewer than two queued events.
func (a *Aggregator) IntervalRate() (perWindow, stdDevMs float64, ok bool) {
	intervals := a.Intervals()
	if len(intervals) == 0 {
		return 0, 0, false
	}
	mean, std := stat.MeanStdDev(intervals, nil)
	if len(intervals) == 1 {
		std = 0
	}
	if mean <= 0 {
		return 0, std, false
	}
	return float64(a.window) / mean, std, true
}

// Reset empties the queue and forgets the warm-up origin.
func (a *Aggregator) Reset() {
	clear(a.queue)
	a.queue = a.queue[:0]
	a.head = 0
	a.hasOrigin = false
}
