// Package dispatcher routes host commands to engine handlers. Handlers run
// inline by default; Buffered handlers run on their own goroutine so slow
// persistence never stalls pointer input.
package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned when an event is dispatched to a buffered handler
// after Close.
var ErrClosed = errors.New("dispatcher closed")

// Queued is the result of a successful dispatch to a buffered handler.
const Queued = "queued"

// Event is one input command from the host, such as a pointer sample or
// the end of a transform.
type Event struct {
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
}

type HandlerFunc func(Event) (any, error)

// Logger takes slog-style key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Decode unmarshals the event payload into T. An empty payload yields the
// zero value.
func Decode[T any](e Event) (T, error) {
	var v T
	if len(e.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("decoding %s payload: %w", e.Command, err)
	}
	return v, nil
}

// Dispatcher routes events to registered handlers. All Register calls
// must happen before the first Dispatch.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger
	metrics  *metrics

	mu     sync.RWMutex
	queues map[string]*queue
	closed bool

	workers sync.WaitGroup
	pending pendingCounter
}

func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*queue),
		logger:   logger,
	}
	d.pending.cond = sync.NewCond(&d.pending.mu)

	m, err := newMetrics(d.queueDepths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register installs h for command. Logging wraps the outermost layer, so
// a logged buffered handler logs the enqueue, not the work.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize > 0 {
		h = d.buffered(command, o.bufferSize, o.blocking, h)
	}
	if o.logged {
		h = d.logged(command, h)
	}
	d.handlers[command] = h
}

// Dispatch stamps events without a timestamp with the current time and
// runs the handler for e.Command.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Close stops accepting buffered events and waits until every queued event
// has been handled. Synchronous handlers keep working. Calling Close again
// does nothing.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q.events)
	}
	d.mu.Unlock()

	d.workers.Wait()
}

// Drain blocks until every event queued so far has been handled.
func (d *Dispatcher) Drain() {
	d.pending.wait()
}

func (d *Dispatcher) queueDepths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.queues))
	for cmd, q := range d.queues {
		out[cmd] = len(q.events)
	}
	return out
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	attr := commandAttr(command)
	return func(e Event) (any, error) {
		d.logger.Debug("handling event", "command", command, "payloadBytes", len(e.Payload))
		start := time.Now()
		result, err := h(e)
		took := time.Since(start)
		d.metrics.recordDuration(took, attr)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", took, "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", took)
		return result, nil
	}
}

// pendingCounter counts buffered events that are queued or running.
type pendingCounter struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func (p *pendingCounter) add(delta int) {
	p.mu.Lock()
	p.n += delta
	if p.n <= 0 {
		p.n = 0
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

func (p *pendingCounter) wait() {
	p.mu.Lock()
	for p.n > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}
