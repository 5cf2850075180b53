// Package store holds the user credential table and the fixed pool of
// database connections used to reach it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPoolInit is returned when the pool cannot open its connections.
	ErrPoolInit = errors.New("store: connection pool init failed")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("store: connection pool closed")
	// ErrUnavailable wraps every infrastructure failure of the store.
	ErrUnavailable = errors.New("store: unavailable")
)

// Pool is a fixed set of pre-opened connections. A counting semaphore bounds
// concurrent users; the free list is guarded by a mutex.
type Pool struct {
	db   *sql.DB
	sem  chan struct{}
	done chan struct{}

	mu     sync.Mutex
	free   []*sql.Conn
	closed bool
	size   int
}

// NewPool opens and pings size connections from db.
func NewPool(ctx context.Context, db *sql.DB, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrPoolInit, size)
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	p := &Pool{
		db:   db,
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
		free: make([]*sql.Conn, 0, size),
		size: size,
	}
	for i := 0; i < size; i++ {
		conn, err := db.Conn(ctx)
		if err == nil {
			err = conn.PingContext(ctx)
			if err != nil {
				conn.Close()
			}
		}
		if err != nil {
			p.closeFree()
			return nil, fmt.Errorf("%w: %w", ErrPoolInit, err)
		}
		p.free = append(p.free, conn)
		p.sem <- struct{}{}
	}
	return p, nil
}

// Acquire blocks until a connection is free, ctx is done or the pool closes.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	conn := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return conn, nil
}

// Release returns conn to the pool. A conn released after Close is closed.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.free = append(p.free, conn)
	p.mu.Unlock()

	p.sem <- struct{}{}
}

// WithConn runs fn with an acquired connection and releases it on every path.
func (p *Pool) WithConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// FreeCount returns the number of idle connections.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the number of connections the pool was created with.
func (p *Pool) Size() int { return p.size }

// Close closes idle connections and the underlying DB. Borrowed connections
// are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.closeFree()
	p.mu.Unlock()

	return p.db.Close()
}

func (p *Pool) closeFree() {
	for _, c := range p.free {
		c.Close()
	}
	p.free = nil
}
