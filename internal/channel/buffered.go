package channel

import "sync"

// Buffered hands frame output to a consumer running on another goroutine.
// Send never blocks: when the buffer is full the oldest value is dropped,
// so a slow renderer sees the newest frames and never stalls the input path.
type Buffered[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped int
}

// NewBuffered creates a channel holding up to size values. Sizes below one
// are raised to one.
func NewBuffered[T any](size int) *Buffered[T] {
	if size < 1 {
		size = 1
	}
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send queues v, evicting the oldest queued value if needed. Sends after
// Close are ignored.
func (b *Buffered[T]) Send(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- v:
			return
		default:
		}
		select {
		case <-b.ch:
			b.dropped++
		default:
		}
	}
}

// Receive returns the receive-only channel
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of items currently in the buffer
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Dropped returns how many values were evicted unread.
func (b *Buffered[T]) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes the channel. Values already queued can still be received.
func (b *Buffered[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
