// Package queue holds pending writes between the engine and a storage writer.
package queue

import "sync"

// Queue is a FIFO safe for concurrent use. Items taken from the head are
// copied out, so callers may keep them after further pushes.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
}

// Requeue puts items back in front of everything still queued, keeping
// their order. Writers use it after a failed flush.
func (q *Queue[T]) Requeue(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.items[q.head:]
	merged := make([]T, 0, len(items)+len(rest))
	merged = append(merged, items...)
	q.items = append(merged, rest...)
	q.head = 0
}

func (q *Queue[T]) Empty() bool { return q.Len() == 0 }

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Take removes up to max items from the head; max <= 0 takes all of them.
func (q *Queue[T]) Take(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) - q.head
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])

	var zero T
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = zero
	}
	q.head += n
	// reuse the backing array once the consumed prefix dominates
	if q.head == len(q.items) {
		q.items, q.head = q.items[:0], 0
	} else if q.head > len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return out
}
