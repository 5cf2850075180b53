// Package timer implements the per-connection timeout heap driven by the
// reactor loop.
package timer

import (
	"sync"
	"time"
)

// ActionKind enumerates what happens when a timer fires.
type ActionKind uint8

const (
	// ActionClose closes the connection identified by FD and ConnID.
	ActionClose ActionKind = iota
)

// Action is the tagged payload of a timer entry. It is interpreted by the
// handler given to New.
type Action struct {
	Kind   ActionKind
	FD     int
	ConnID uint64
}

type node struct {
	id      int
	expires time.Time
	action  Action
}

// HeapTimer is a binary min-heap of deadlines keyed by id, with an id→index
// map so entries can be adjusted or removed in O(log n).
//
// Actions are run after the internal lock is released; a handler may call
// back into the timer.
type HeapTimer struct {
	mu      sync.Mutex
	heap    []node
	ref     map[int]int
	handler func(Action)
	now     func() time.Time
}

// New creates an empty timer whose fired actions are passed to handler.
func New(handler func(Action)) *HeapTimer {
	if handler == nil {
		handler = func(Action) {}
	}
	return &HeapTimer{
		heap:    make([]node, 0, 64),
		ref:     make(map[int]int),
		handler: handler,
		now:     time.Now,
	}
}

// Add schedules action to fire after timeout. An existing id has its expiry
// and action replaced.
func (t *HeapTimer) Add(id int, timeout time.Duration, action Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	expires := t.now().Add(timeout)
	if i, ok := t.ref[id]; ok {
		t.heap[i].expires = expires
		t.heap[i].action = action
		t.fix(i)
		return
	}

	i := len(t.heap)
	t.ref[id] = i
	t.heap = append(t.heap, node{id: id, expires: expires, action: action})
	t.siftUp(i)
}

// Adjust moves the expiry of id to now+timeout. It returns false for an
// unknown id.
func (t *HeapTimer) Adjust(id int, timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.ref[id]
	if !ok {
		return false
	}
	t.heap[i].expires = t.now().Add(timeout)
	t.fix(i)
	return true
}

// Remove deletes id without running its action.
func (t *HeapTimer) Remove(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.ref[id]
	if !ok {
		return false
	}
	t.del(i)
	return true
}

// DoWork deletes id and runs its action immediately.
func (t *HeapTimer) DoWork(id int) bool {
	t.mu.Lock()
	i, ok := t.ref[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	action := t.heap[i].action
	t.del(i)
	t.mu.Unlock()

	t.handler(action)
	return true
}

// Pop removes the earliest entry without running it.
func (t *HeapTimer) Pop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.heap) > 0 {
		t.del(0)
	}
}

// Tick removes every expired entry and runs its action.
func (t *HeapTimer) Tick() {
	t.mu.Lock()
	if len(t.heap) == 0 {
		t.mu.Unlock()
		return
	}
	now := t.now()
	var fired []Action
	for len(t.heap) > 0 && !t.heap[0].expires.After(now) {
		fired = append(fired, t.heap[0].action)
		t.del(0)
	}
	t.mu.Unlock()

	for _, a := range fired {
		t.handler(a)
	}
}

// GetNextTick runs Tick and returns the milliseconds until the next expiry,
// or -1 when no entries remain.
func (t *HeapTimer) GetNextTick() int {
	t.Tick()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.heap) == 0 {
		return -1
	}
	d := t.heap[0].expires.Sub(t.now())
	if d <= 0 {
		return 0
	}
	// Round up so the reactor does not wake just before the deadline.
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// Len returns the number of scheduled entries.
func (t *HeapTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.heap)
}

// Clear drops every entry without running any action.
func (t *HeapTimer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.heap = t.heap[:0]
	clear(t.ref)
}

func (t *HeapTimer) del(i int) {
	last := len(t.heap) - 1
	if i != last {
		t.swap(i, last)
	}
	delete(t.ref, t.heap[last].id)
	t.heap = t.heap[:last]
	if i < last {
		t.fix(i)
	}
}

func (t *HeapTimer) fix(i int) {
	if !t.siftDown(i) {
		t.siftUp(i)
	}
}

func (t *HeapTimer) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !t.heap[i].expires.Before(t.heap[parent].expires) {
			break
		}
		t.swap(i, parent)
		i = parent
	}
}

// siftDown reports whether the node moved.
func (t *HeapTimer) siftDown(i int) bool {
	start := i
	n := len(t.heap)
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if r := child + 1; r < n && t.heap[r].expires.Before(t.heap[child].expires) {
			child = r
		}
		if !t.heap[child].expires.Before(t.heap[i].expires) {
			break
		}
		t.swap(i, child)
		i = child
	}
	return i > start
}

func (t *HeapTimer) swap(i, j int) {
	t.heap[i], t.heap[j] = t.heap[j], t.heap[i]
	t.ref[t.heap[i].id] = i
	t.ref[t.heap[j].id] = j
}
