package media

import (
	"io"
	"sync"
)

// Queue is a bounded FIFO shared by pipeline stages. Closing it marks end
// of stream: consumers drain what is left and then get io.EOF. Aborting
// it discards everything and fails all waiters with ErrQueueAborted.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []T
	capacity int
	closed   bool
	aborted  bool
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: max(1, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *Queue[T]) stateErr() error {
	if q.aborted {
		return ErrQueueAborted
	}
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

// Push blocks until there is room for v.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) >= q.capacity && q.stateErr() == nil {
		q.notFull.Wait()
	}
	if err := q.stateErr(); err != nil {
		return err
	}
	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return nil
}

// TryPush adds v if there is room. It reports false when the queue is full
// or no longer accepting items.
func (q *Queue[T]) TryPush(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stateErr() != nil || len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return true
}

// PushLatest adds v, evicting the oldest item when full. It returns the
// number of evicted items.
func (q *Queue[T]) PushLatest(v T) (evicted int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.stateErr(); err != nil {
		return 0, err
	}
	for len(q.items) >= q.capacity {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		evicted++
	}
	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return evicted, nil
}

// Pop blocks until an item is available. It returns io.EOF once the queue
// is closed and empty.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for len(q.items) == 0 && !q.closed && !q.aborted {
		q.notEmpty.Wait()
	}
	if q.aborted {
		return zero, ErrQueueAborted
	}
	if len(q.items) == 0 {
		return zero, io.EOF
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.notFull.Signal()
	return v, nil
}

// Close marks end of stream. Only the first call succeeds.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.stateErr(); err != nil {
		return err
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return nil
}

// Abort drops queued items and wakes every waiter.
func (q *Queue[T]) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.items = nil
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Closed reports whether the queue stopped accepting items.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed || q.aborted
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return q.capacity }
