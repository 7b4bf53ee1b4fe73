package common

import (
	"fmt"
)

// Entry is a single (timestamp, value) pair held by a WindowedBuffer.
// Timestamps are milliseconds.
type Entry struct {
	Timestamp int64
	Value     float64
}

// EvictionPolicy selects how a WindowedBuffer bounds itself.
type EvictionPolicy int

const (
	// EvictByCount keeps at most Capacity entries; Push drops the oldest.
	EvictByCount EvictionPolicy = iota
	// EvictByDuration keeps entries with now-timestamp <= Duration after Evict.
	EvictByDuration
)

func (p EvictionPolicy) String() string {
	switch p {
	case EvictByCount:
		return "count"
	case EvictByDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// ranked is an entry in a monotonic deque, tagged with its push sequence.
type ranked struct {
	seq   uint64
	value float64
}

// WindowedBuffer is a bounded, insertion-ordered store of entries with running
// min/max. Min and Max are maintained with monotonic deques so they cost O(1)
// amortized per Push/Evict.
//
// A WindowedBuffer is not safe for concurrent use; it belongs to the single
// goroutine that feeds its stream.
type WindowedBuffer struct {
	policy   EvictionPolicy
	capacity int   // count bound, or hard cap for duration buffers (0 = none)
	duration int64 // ms, duration policy only

	items []Entry
	head  int    // index of the oldest live entry in items
	seq   uint64 // sequence of the next pushed entry

	minQ []ranked
	maxQ []ranked
}

// NewCountWindow creates a buffer bounded to capacity entries.
func NewCountWindow(capacity int) (*WindowedBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	return &WindowedBuffer{
		policy:   EvictByCount,
		capacity: capacity,
		items:    make([]Entry, 0, capacity),
	}, nil
}

// NewDurationWindow creates a buffer holding the trailing durationMs
// milliseconds. maxEntries is a hard memory cap (0 disables it); when reached,
// Push drops the oldest entry regardless of its age.
func NewDurationWindow(durationMs int64, maxEntries int) (*WindowedBuffer, error) {
	if durationMs <= 0 {
		return nil, fmt.Errorf("window duration must be positive, got %dms", durationMs)
	}
	if maxEntries < 0 {
		return nil, fmt.Errorf("max entries must not be negative, got %d", maxEntries)
	}
	return &WindowedBuffer{
		policy:   EvictByDuration,
		capacity: maxEntries,
		duration: durationMs,
	}, nil
}

// Policy returns the eviction policy.
func (wb *WindowedBuffer) Policy() EvictionPolicy {
	return wb.policy
}

// Capacity returns the count bound (0 when a duration buffer has no cap).
func (wb *WindowedBuffer) Capacity() int {
	return wb.capacity
}

// Duration returns the trailing duration in ms (0 for count buffers).
func (wb *WindowedBuffer) Duration() int64 {
	return wb.duration
}

// Push appends an entry. Count-bounded buffers drop the oldest entry when
// full; duration-bounded buffers only shrink on Evict (or at the hard cap).
func (wb *WindowedBuffer) Push(timestamp int64, value float64) {
	if wb.capacity > 0 && wb.Size() >= wb.capacity {
		wb.popFront()
	}

	wb.items = append(wb.items, Entry{Timestamp: timestamp, Value: value})
	r := ranked{seq: wb.seq, value: value}
	wb.seq++

	for len(wb.minQ) > 0 && wb.minQ[len(wb.minQ)-1].value >= value {
		wb.minQ = wb.minQ[:len(wb.minQ)-1]
	}
	wb.minQ = append(wb.minQ, r)

	for len(wb.maxQ) > 0 && wb.maxQ[len(wb.maxQ)-1].value <= value {
		wb.maxQ = wb.maxQ[:len(wb.maxQ)-1]
	}
	wb.maxQ = append(wb.maxQ, r)
}

// Evict drops entries outside the window relative to now and returns how many
// were removed. For duration buffers that is every entry with
// now-timestamp > Duration; for count buffers it trims to Capacity. Calling
// Evict again with the same now removes nothing.
func (wb *WindowedBuffer) Evict(now int64) int {
	removed := 0
	switch wb.policy {
	case EvictByDuration:
		for wb.Size() > 0 && now-wb.items[wb.head].Timestamp > wb.duration {
			wb.popFront()
			removed++
		}
	case EvictByCount:
		for wb.Size() > wb.capacity {
			wb.popFront()
			removed++
		}
	}
	return removed
}

func (wb *WindowedBuffer) popFront() {
	if wb.Size() == 0 {
		return
	}
	oldest := wb.seq - uint64(wb.Size())
	wb.items[wb.head] = Entry{}
	wb.head++

	if len(wb.minQ) > 0 && wb.minQ[0].seq == oldest {
		wb.minQ = wb.minQ[1:]
	}
	if len(wb.maxQ) > 0 && wb.maxQ[0].seq == oldest {
		wb.maxQ = wb.maxQ[1:]
	}

	// Compact once the dead prefix dominates so memory stays bounded.
	if wb.head > 32 && wb.head*2 >= len(wb.items) {
		n := copy(wb.items, wb.items[wb.head:])
		wb.items = wb.items[:n]
		wb.head = 0
	}
}

// Size returns the number of live entries.
func (wb *WindowedBuffer) Size() int {
	return len(wb.items) - wb.head
}

// Full reports whether a count buffer holds Capacity entries.
func (wb *WindowedBuffer) Full() bool {
	return wb.capacity > 0 && wb.Size() >= wb.capacity
}

// Min returns the smallest live value; ok is false when the buffer is empty.
func (wb *WindowedBuffer) Min() (float64, bool) {
	if len(wb.minQ) == 0 {
		return 0, false
	}
	return wb.minQ[0].value, true
}

// Max returns the largest live value; ok is false when the buffer is empty.
func (wb *WindowedBuffer) Max() (float64, bool) {
	if len(wb.maxQ) == 0 {
		return 0, false
	}
	return wb.maxQ[0].value, true
}

// At returns the i-th live entry, oldest first.
func (wb *WindowedBuffer) At(i int) Entry {
	return wb.items[wb.head+i]
}

// Last returns the newest entry.
func (wb *WindowedBuffer) Last() (Entry, bool) {
	if wb.Size() == 0 {
		return Entry{}, false
	}
	return wb.items[len(wb.items)-1], true
}

// First returns the oldest entry.
func (wb *WindowedBuffer) First() (Entry, bool) {
	if wb.Size() == 0 {
		return Entry{}, false
	}
	return wb.items[wb.head], true
}

// Each calls fn for every live entry in insertion order until fn returns false.
func (wb *WindowedBuffer) Each(fn func(Entry) bool) {
	for _, e := range wb.items[wb.head:] {
		if !fn(e) {
			return
		}
	}
}

// Entries returns a copy of the live entries in insertion order.
func (wb *WindowedBuffer) Entries() []Entry {
	out := make([]Entry, wb.Size())
	copy(out, wb.items[wb.head:])
	return out
}

// Values returns a copy of the live values in insertion order.
func (wb *WindowedBuffer) Values() []float64 {
	out := make([]float64, 0, wb.Size())
	for _, e := range wb.items[wb.head:] {
		out = append(out, e.Value)
	}
	return out
}

// Span returns newest minus oldest timestamp (0 with fewer than two entries).
func (wb *WindowedBuffer) Span() int64 {
	if wb.Size() < 2 {
		return 0
	}
	return wb.items[len(wb.items)-1].Timestamp - wb.items[wb.head].Timestamp
}

// Clear drops every entry. Sequence numbers keep counting so evicted entries
// can never be confused with new ones.
func (wb *WindowedBuffer) Clear() {
	clear(wb.items)
	wb.items = wb.items[:0]
	wb.head = 0
	wb.minQ = wb.minQ[:0]
	wb.maxQ = wb.maxQ[:0]
}
