package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// Listener receives pipeline notifications on the dispatcher goroutine.
// A returned error or a panic is logged and does not affect other listeners.
type Listener interface {
	OnEvent(ctx context.Context, event Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event Event) error

func (f ListenerFunc) OnEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type subscription struct {
	id       uint64
	name     string
	listener Listener
}

// Registry is a copy-on-write list of listeners. Readers take a snapshot
// without locking, so listeners may subscribe or unsubscribe while an event
// is being delivered; the change applies from the next event on.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   atomic.Pointer[[]subscription]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.subs.Store(&[]subscription{})
	return r
}

// Subscribe adds l under name and returns a function that removes it again.
// The returned function is safe to call more than once.
func (r *Registry) Subscribe(name string, l Listener) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	cur := *r.subs.Load()
	next := make([]subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, subscription{id: id, name: name, listener: l})
	r.subs.Store(&next)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.subs.Load()
	next := make([]subscription, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	r.subs.Store(&next)
}

// Clear removes every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs.Store(&[]subscription{})
	r.mu.Unlock()
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	return len(*r.subs.Load())
}

func (r *Registry) snapshot() []subscription {
	return *r.subs.Load()
}
