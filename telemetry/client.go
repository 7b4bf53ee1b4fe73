package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-pulso/logging"
)

// Sink writes readings to a collector.
type Sink interface {
	Write(ctx context.Context, r Reading) error
	Close() error
}

// DefaultQueueSize bounds readings waiting for the sink.
const DefaultQueueSize = 1024

// writeTimeout bounds a single sink write.
const writeTimeout = 5 * time.Second

// ErrClosed is returned by Close on an already closed client.
var ErrClosed = errors.New("telemetry client closed")

// Stats counts what happened to submitted readings.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// Client queues readings in front of a Sink. Send never blocks: when the
// queue is full the reading is dropped and counted. Sink errors are logged.
type Client struct {
	sink   Sink
	logger logging.Logger

	queue     chan Reading
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	abandon   atomic.Bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient starts a client that writes to sink.
func NewClient(sink Sink, queueSize int, opts ...ClientOption) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &Client{
		sink:   sink,
		logger: logging.Component("telemetry"),
		queue:  make(chan Reading, queueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

// Send queues r and reports whether it was accepted.
func (c *Client) Send(r Reading) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	select {
	case c.queue <- r:
		return true
	default:
		if c.dropped.Add(1)%100 == 1 {
			c.logger.Warn("telemetry queue full, dropping readings", logging.Fields{
				"dropped": c.dropped.Load(),
			})
		}
		return false
	}
}

func (c *Client) run() {
	defer close(c.done)
	for r := range c.queue {
		if c.abandon.Load() {
			c.dropped.Add(1)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.sink.Write(ctx, r)
		cancel()
		if err != nil {
			c.failed.Add(1)
			c.logger.Error(err, "failed to write telemetry reading", logging.Fields{
				"kind": r.Kind,
			})
			continue
		}
		c.sent.Add(1)
	}
}

// Close stops accepting readings, waits for queued ones to be written and
// closes the sink. When ctx expires first the remaining readings are dropped;
// Close still waits for the write in progress, so the sink is never closed
// under a concurrent Write.
func (c *Client) Close(ctx context.Context) error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()

		select {
		case <-c.done:
			err = nil
		case <-ctx.Done():
			err = ctx.Err()
			c.abandon.Store(true)
			<-c.done
		}
		if cerr := c.sink.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:    c.sent.Load(),
		Failed:  c.failed.Load(),
		Dropped: c.dropped.Load(),
	}
}
