package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher queues events in two buffered lanes and delivers them to every
// sink from a single worker. The high lane is always drained first.
type Dispatcher struct {
	high    chan Event
	normal  chan Event
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	quit   chan struct{}
	done   chan struct{}
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher starts the worker. buffer is the capacity of each lane;
// timeout bounds a single sink delivery.
func NewDispatcher(log *slog.Logger, buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		high:    make(chan Event, buffer),
		normal:  make(chan Event, buffer),
		sinks:   sinks,
		log:     log,
		timeout: timeout,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit enqueues e and returns immediately. It reports false when the event
// was dropped because the lane is full or the dispatcher is closed.
func (d *Dispatcher) Emit(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("event dropped, dispatcher closed", "type", e.Type, "order_id", e.OrderID)
		return false
	}
	lane := d.normal
	if e.Priority == PriorityHigh {
		lane = d.high
	}
	select {
	case lane <- e:
		return true
	default:
		d.log.Warn("event dropped, queue full", "type", e.Type, "order_id", e.OrderID, "priority", e.Priority.String())
		return false
	}
}

// Close stops intake, delivers what is already queued and waits for the
// worker until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.quit)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.high:
			d.deliver(e)
			continue
		default:
		}

		select {
		case e := <-d.high:
			d.deliver(e)
		case e := <-d.normal:
			d.deliver(e)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.high:
			d.deliver(e)
		default:
			select {
			case e := <-d.normal:
				d.deliver(e)
			default:
				return
			}
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := s.Publish(ctx, e); err != nil {
			d.log.Warn("event sink failed",
				"sink", s.Name(),
				"type", e.Type,
				"order_id", e.OrderID,
				"err", err,
			)
		}
		cancel()
	}
}
