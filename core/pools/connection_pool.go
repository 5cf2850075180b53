package pools

import (
	"sync"
	"sync/atomic"
)

// Recyclable is implemented by objects that can be cleared for reuse.
type Recyclable interface {
	Reset()
}

// ConnectionPool recycles per-connection objects so their buffers survive
// across connections.
type ConnectionPool[T Recyclable] struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
	news atomic.Uint64
}

// NewConnectionPool creates a pool that allocates with newFunc on a miss.
func NewConnectionPool[T Recyclable](newFunc func() T) *ConnectionPool[T] {
	cp := &ConnectionPool[T]{}
	cp.pool.New = func() any {
		cp.news.Add(1)
		return newFunc()
	}
	return cp
}

// Get retrieves a connection object from the pool
func (cp *ConnectionPool[T]) Get() T {
	cp.gets.Add(1)
	return cp.pool.Get().(T)
}

// Put resets obj and returns it to the pool
func (cp *ConnectionPool[T]) Put(obj T) {
	obj.Reset()
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats returns pool statistics. HitRate is the share of Gets served
// without allocating.
func (cp *ConnectionPool[T]) Stats() ConnectionPoolStats {
	g := cp.gets.Load()
	s := ConnectionPoolStats{
		Gets: g,
		Puts: cp.puts.Load(),
		News: cp.news.Load(),
	}
	if g > 0 && s.News <= g {
		s.HitRate = float64(g-s.News) / float64(g)
	}
	return s
}

// ConnectionPoolStats contains pool statistics
type ConnectionPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	News    uint64  `json:"news"`
	HitRate float64 `json:"hit_rate"`
}
