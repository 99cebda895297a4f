package channel

import (
	"context"
	"sync"
	"time"
)

// DefaultFrameInterval is one rendering frame at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// Latest coalesces values published within one frame. Only the most recent
// value is forwarded to the sink on the next Flush; a pending value is never
// held back for more than one flush.
type Latest[T any] struct {
	mu      sync.Mutex
	pending T
	has     bool
	sink    Sender[T]

	published int
	delivered int
}

// NewLatest creates a coalescer that forwards to sink. A nil sink discards.
func NewLatest[T any](sink Sender[T]) *Latest[T] {
	if sink == nil {
		sink = Discard[T]()
	}
	return &Latest[T]{sink: sink}
}

// Publish replaces any value pending for the current frame.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = v
	l.has = true
	l.published++
}

// Pending returns the value waiting for the next flush.
func (l *Latest[T]) Pending() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending, l.has
}

// Flush forwards the pending value, if any. It reports whether a value was sent.
func (l *Latest[T]) Flush() bool {
	l.mu.Lock()
	if !l.has {
		l.mu.Unlock()
		return false
	}
	v := l.pending
	var zero T
	l.pending, l.has = zero, false
	l.delivered++
	sink := l.sink
	l.mu.Unlock()

	sink.Send(v)
	return true
}

// Stats returns how many values were published and how many reached the sink.
func (l *Latest[T]) Stats() (published, delivered int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.published, l.delivered
}

// Run flushes once per interval until ctx is done, then flushes a last time.
func (l *Latest[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Flush()
			return
		case <-ticker.C:
			l.Flush()
		}
	}
}
