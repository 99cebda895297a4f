package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on a worker goroutine fed by a queue of size
// events. The dispatch result is Queued; handler errors are only logged.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a full buffered queue wait for room instead of dropping
// the event.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every event at debug level and failures at error level, and
// records the handler duration.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

type queue struct {
	command  string
	events   chan Event
	blocking bool
	attr     metric.MeasurementOption
}

func (d *Dispatcher) buffered(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	q := &queue{
		command:  command,
		events:   make(chan Event, size),
		blocking: blocking,
		attr:     commandAttr(command),
	}
	d.mu.Lock()
	d.queues[command] = q
	d.mu.Unlock()

	d.workers.Add(1)
	go d.work(q, h)

	return func(e Event) (any, error) { return d.enqueue(q, e) }
}

func (d *Dispatcher) work(q *queue, h HandlerFunc) {
	defer d.workers.Done()
	ctx := context.Background()
	for e := range q.events {
		if _, err := h(e); err != nil {
			d.metrics.failed.Add(ctx, 1, q.attr)
			d.logger.Error("buffered event failed", "command", q.command, "error", err)
		}
		d.metrics.processed.Add(ctx, 1, q.attr)
		d.pending.add(-1)
	}
}

// enqueue holds the read lock while sending so Close cannot close the
// channel underneath a blocked sender.
func (d *Dispatcher) enqueue(q *queue, e Event) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	d.pending.add(1)
	if q.blocking {
		q.events <- e
		return Queued, nil
	}
	select {
	case q.events <- e:
		return Queued, nil
	default:
		d.pending.add(-1)
		d.metrics.dropped.Add(context.Background(), 1, q.attr)
		return nil, fmt.Errorf("queue full: %s", q.command)
	}
}
