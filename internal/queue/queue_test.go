package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_PushLen(t *testing.T) {
	q := New[int]()
	assert.True(t, q.Empty())

	q.Push(1)
	q.Push(2, 3)
	assert.Equal(t, 3, q.Len())
	assert.False(t, q.Empty())
}

func TestQueue_TakeAll(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	assert.Equal(t, []int{1, 2, 3}, q.Take(0))
	assert.True(t, q.Empty())
	assert.Empty(t, q.Take(5))
}

func TestQueue_TakeChunks(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3, 4)

	first := q.Take(3)
	assert.Equal(t, []int{1, 2, 3}, first)
	assert.Equal(t, 1, q.Len())

	// taken chunks do not alias the queue
	q.Push(5, 6, 7)
	assert.Equal(t, []int{1, 2, 3}, first)

	assert.Equal(t, []int{4, 5}, q.Take(2))
	assert.Equal(t, []int{6, 7}, q.Take(10))
}

func TestQueue_Requeue(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)
	failed := q.Take(2)
	q.Push(4)

	q.Requeue(failed...)
	q.Requeue()

	assert.Equal(t, []int{1, 2, 3, 4}, q.Take(0))
}

func TestQueue_ConcurrentAccess(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	taken := make(chan int, 5)

	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				q.Push(i*100 + j)
			}
		}()
	}
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for range 20 {
				n += len(q.Take(7))
			}
			taken <- n
		}()
	}
	wg.Wait()
	close(taken)

	total := q.Len()
	for n := range taken {
		total += n
	}
	assert.Equal(t, 1000, total)
}
