package logger

import (
	"sync"

	"github.com/eapache/queue"
)

// BlockQueue is a bounded FIFO of formatted log lines shared between
// producers and the single writer goroutine.
type BlockQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    *queue.Queue
	capacity int
	closed   bool
}

// NewBlockQueue creates a queue holding at most capacity lines.
func NewBlockQueue(capacity int) *BlockQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &BlockQueue{
		items:    queue.New(),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// TryPush appends line unless the queue is full or closed. A full queue
// makes the caller write the line itself.
func (q *BlockQueue) TryPush(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.items.Length() >= q.capacity {
		return false
	}
	q.items.Add(line)
	q.notEmpty.Signal()
	return true
}

// TryPop removes the oldest line if there is one.
func (q *BlockQueue) TryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return "", false
	}
	return q.remove(), true
}

// Wait blocks until a line is available or the queue is closed. It returns
// false when the queue is closed and empty.
func (q *BlockQueue) Wait() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	return q.items.Length() > 0
}

// Close wakes every waiter. Queued lines remain poppable.
func (q *BlockQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.notEmpty.Broadcast()
}

func (q *BlockQueue) remove() string {
	return q.items.Remove().(string)
}
