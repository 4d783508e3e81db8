package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the queue length used when Config.BufferSize is unset.
const DefaultBufferSize = 256

// writeTimeout bounds a single sink write.
const writeTimeout = 5 * time.Second

// Config controls dispatcher buffering.
type Config struct {
	BufferSize int
}

// Dispatcher forwards events to a sink from a single worker goroutine.
//
// Emit never blocks: when the queue is full the event is dropped and
// counted. Close stops intake and waits until every queued event has been
// written.
type Dispatcher struct {
	sink   Sink
	logger Logger
	onDrop func()
	now    func() time.Time

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once

	// mu orders sends against Close: Emit sends under the read lock and
	// Close flips closed under the write lock, so nothing lands in ch
	// after the worker starts its final drain.
	mu     sync.RWMutex
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDropHook registers fn to run each time an event is dropped.
func WithDropHook(fn func()) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// WithClock sets the time source used to stamp events without OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher starts a dispatcher writing to sink. A nil sink discards.
func NewDispatcher(cfg Config, sink Sink, logger Logger, opts ...Option) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if sink == nil {
		sink = NoopSink{}
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		now:    time.Now,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Emit queues e. IDs and timestamps are filled in when missing. An event
// that finds the queue full or the dispatcher closed is dropped and counted.
func (d *Dispatcher) Emit(e Event) {
	if d == nil {
		return
	}
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = d.now().UTC()
	}

	d.mu.RLock()
	queued := false
	if !d.closed {
		select {
		case d.ch <- e:
			queued = true
		default:
		}
	}
	closed := d.closed
	d.mu.RUnlock()

	if !queued {
		d.drop(e, closed)
	}
}

func (d *Dispatcher) drop(e Event, closed bool) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
	if d.logger == nil {
		return
	}
	if closed {
		d.logger.Warn("audit dispatcher closed, event dropped", "action", string(e.Action))
		return
	}
	d.logger.Warn("audit queue full, event dropped", "action", string(e.Action))
}

// Dropped returns how many events were discarded, either because the queue
// was full or because they arrived after Close.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting events and drains the queue.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.sink.Write(ctx, e); err != nil && d.logger != nil {
		d.logger.Error("audit sink write failed",
			"action", string(e.Action),
			"event_id", e.ID,
			"error", err,
		)
	}
}
