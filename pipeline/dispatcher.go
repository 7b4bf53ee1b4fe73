package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-pulso/logging"
)

// DefaultQueueSize bounds the notifications waiting for delivery.
const DefaultQueueSize = 256

type queued struct {
	event   Event
	barrier chan struct{}
}

// dispatcher delivers notifications in order on its own goroutine so that
// Feed never waits on a listener.
type dispatcher struct {
	registry *Registry
	logger   logging.Logger

	queue  chan queued
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
}

func newDispatcher(registry *Registry, size int, logger logging.Logger) *dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		registry: registry,
		logger:   logger,
		queue:    make(chan queued, size),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// enqueue never blocks. A full queue drops the notification.
func (d *dispatcher) enqueue(e Event) bool {
	select {
	case d.queue <- queued{event: e}:
		return true
	default:
		if n := d.dropped.Add(1); n%100 == 1 {
			d.logger.Warn("notification queue full, dropping events", logging.Fields{
				"capacity": cap(d.queue),
				"dropped":  n,
			})
		}
		return false
	}
}

// flush waits until everything queued before the call has been delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	b := make(chan struct{})
	select {
	case d.queue <- queued{barrier: b}:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return context.Canceled
	}
	select {
	case <-b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return context.Canceled
	}
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case q := <-d.queue:
			// Stop wins over anything still queued.
			if d.ctx.Err() != nil {
				return
			}
			if q.barrier != nil {
				close(q.barrier)
				continue
			}
			d.deliver(q.event)
		}
	}
}

func (d *dispatcher) deliver(e Event) {
	for _, s := range d.registry.snapshot() {
		if err := d.invoke(s, e); err != nil {
			d.failures.Add(1)
			d.logger.Error(err, "listener failed", logging.Fields{
				"listener": s.name,
				"event":    string(e.Kind()),
			})
		}
	}
	d.delivered.Add(1)
}

func (d *dispatcher) invoke(s subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return s.listener.OnEvent(d.ctx, e)
}

// stop discards undelivered notifications and waits for the goroutine.
func (d *dispatcher) stop() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
		for {
			select {
			case q := <-d.queue:
				if q.barrier != nil {
					close(q.barrier)
				}
			default:
				return
			}
		}
	})
}
