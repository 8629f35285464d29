package transport

import "sync"

// queue is an unbounded thread-safe FIFO. Senders never block, which keeps
// the client facade free to issue overlapping requests while the processor
// is mid-dispatch. Dequeue blocks until an item arrives or the queue closes.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // buffered size 1; coalesces wakeups
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an item. Returns false if the queue is closed.
func (q *queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	// Signal under the lock so Close cannot close the channel between the
	// closed check above and this send.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return true
}

// Dequeue removes and returns the front item, blocking until one is
// available. The second return is false once the queue is closed and
// drained.
func (q *queue[T]) Dequeue() (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero // release references for GC
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, false
		}
		q.mu.Unlock()
		<-q.signal
	}
}

// Close marks the queue closed and wakes any blocked Dequeue. Items already
// enqueued remain dequeueable.
func (q *queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.signal)
}
