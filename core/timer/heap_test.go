package timer

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTimer(handler func(Action)) (*HeapTimer, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	t := New(handler)
	t.now = clock.Now
	return t, clock
}

func checkInvariants(t *testing.T, h *HeapTimer) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.ref) != len(h.heap) {
		t.Fatalf("ref has %d entries, heap has %d", len(h.ref), len(h.heap))
	}
	for i, n := range h.heap {
		if h.ref[n.id] != i {
			t.Fatalf("ref[%d]=%d, node is at %d", n.id, h.ref[n.id], i)
		}
		if i > 0 {
			parent := (i - 1) / 2
			if n.expires.Before(h.heap[parent].expires) {
				t.Fatalf("node %d expires before its parent %d", i, parent)
			}
		}
	}
}

func TestHeapTimer_TickFiresExpiredInOrder(t *testing.T) {
	var fired []int
	h, clock := newTestTimer(func(a Action) { fired = append(fired, a.FD) })

	h.Add(3, 30*time.Millisecond, Action{FD: 3})
	h.Add(1, 10*time.Millisecond, Action{FD: 1})
	h.Add(2, 20*time.Millisecond, Action{FD: 2})

	clock.Advance(20 * time.Millisecond)
	h.Tick()

	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Errorf("Expected [1 2], got %v", fired)
	}
	if h.Len() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", h.Len())
	}
}

func TestHeapTimer_AddExistingReplaces(t *testing.T) {
	var got Action
	h, clock := newTestTimer(func(a Action) { got = a })

	h.Add(7, time.Second, Action{FD: 7, ConnID: 1})
	h.Add(7, 5*time.Millisecond, Action{FD: 7, ConnID: 2})
	if h.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", h.Len())
	}

	clock.Advance(5 * time.Millisecond)
	h.Tick()
	if got.ConnID != 2 {
		t.Errorf("Expected replaced action with ConnID 2, got %+v", got)
	}
}

func TestHeapTimer_AdjustRemoveDoWork(t *testing.T) {
	var fired []int
	h, clock := newTestTimer(func(a Action) { fired = append(fired, a.FD) })

	if h.Adjust(99, time.Second) {
		t.Error("Adjust of unknown id should return false")
	}

	h.Add(1, 10*time.Millisecond, Action{FD: 1})
	h.Add(2, 10*time.Millisecond, Action{FD: 2})
	h.Add(3, 10*time.Millisecond, Action{FD: 3})

	clock.Advance(5 * time.Millisecond)
	if !h.Adjust(1, 100*time.Millisecond) {
		t.Fatal("Adjust of known id should return true")
	}
	if !h.Remove(2) || h.Remove(2) {
		t.Error("Remove should succeed once")
	}
	if !h.DoWork(3) {
		t.Error("DoWork of known id should return true")
	}
	if len(fired) != 1 || fired[0] != 3 {
		t.Fatalf("Expected DoWork to fire 3, got %v", fired)
	}

	clock.Advance(50 * time.Millisecond)
	h.Tick()
	if len(fired) != 1 {
		t.Errorf("Adjusted entry fired early: %v", fired)
	}
	checkInvariants(t, h)
}

func TestHeapTimer_GetNextTick(t *testing.T) {
	h, clock := newTestTimer(nil)

	if got := h.GetNextTick(); got != -1 {
		t.Errorf("Expected -1 on empty heap, got %d", got)
	}

	h.Add(1, 100*time.Millisecond, Action{FD: 1})
	h.Add(2, 300*time.Millisecond, Action{FD: 2})
	if got := h.GetNextTick(); got != 100 {
		t.Errorf("Expected 100, got %d", got)
	}

	clock.Advance(150 * time.Millisecond)
	if got := h.GetNextTick(); got != 150 {
		t.Errorf("Expected 150 after first expiry, got %d", got)
	}
	if h.Len() != 1 {
		t.Errorf("Expected expired entry to be gone, len=%d", h.Len())
	}
}

func TestHeapTimer_HandlerMayReenter(t *testing.T) {
	var h *HeapTimer
	var clock *fakeClock
	rescheduled := false
	h, clock = newTestTimer(func(a Action) {
		if !rescheduled {
			rescheduled = true
			h.Add(a.FD, time.Second, a)
		}
	})

	h.Add(5, time.Millisecond, Action{FD: 5})
	clock.Advance(time.Millisecond)
	h.Tick()

	if h.Len() != 1 {
		t.Errorf("Expected the handler to reschedule, len=%d", h.Len())
	}
}

func TestHeapTimer_PopAndClear(t *testing.T) {
	fired := 0
	h, _ := newTestTimer(func(Action) { fired++ })

	h.Add(1, time.Millisecond, Action{})
	h.Add(2, 2*time.Millisecond, Action{})
	h.Pop()
	if h.Len() != 1 {
		t.Errorf("Expected 1 entry after Pop, got %d", h.Len())
	}
	h.Clear()
	if h.Len() != 0 || fired != 0 {
		t.Errorf("Expected empty heap and no actions, len=%d fired=%d", h.Len(), fired)
	}
	checkInvariants(t, h)
}

func TestHeapTimer_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h, clock := newTestTimer(nil)

	for i := 0; i < 5000; i++ {
		id := rng.Intn(64)
		timeout := time.Duration(rng.Intn(1000)) * time.Millisecond
		switch rng.Intn(6) {
		case 0, 1:
			h.Add(id, timeout, Action{FD: id})
		case 2:
			h.Adjust(id, timeout)
		case 3:
			h.Remove(id)
		case 4:
			h.DoWork(id)
		case 5:
			clock.Advance(time.Duration(rng.Intn(50)) * time.Millisecond)
			h.Tick()
		}
		checkInvariants(t, h)
	}
}

func BenchmarkHeapTimer_AddAdjust(b *testing.B) {
	h := New(nil)
	for i := 0; i < 1024; i++ {
		h.Add(i, time.Minute, Action{FD: i})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Adjust(i&1023, time.Minute)
	}
}
