package pools

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"golang.org/x/sys/cpu"
)

// TaskKind enumerates the units of work a connection can be handed to a
// worker for.
type TaskKind uint8

const (
	// TaskRead drains the socket and then processes the read buffer.
	TaskRead TaskKind = iota
	// TaskWrite flushes the pending response vectors.
	TaskWrite
	// TaskProcess parses whatever is already buffered and plans a response.
	TaskProcess
)

func (k TaskKind) String() string {
	switch k {
	case TaskRead:
		return "read"
	case TaskWrite:
		return "write"
	case TaskProcess:
		return "process"
	default:
		return "unknown"
	}
}

// Task represents a unit of work for one connection. ConnID lets the handler
// reject tasks whose descriptor has since been reused by another connection.
type Task struct {
	Kind   TaskKind
	FD     int
	ConnID uint64
}

// TaskHandler interprets tasks. Panics and errors inside HandleTask belong to
// the handler; the pool does not recover or retry.
type TaskHandler interface {
	HandleTask(t Task)
}

// TaskHandlerFunc adapts a function to TaskHandler.
type TaskHandlerFunc func(t Task)

// HandleTask calls f(t).
func (f TaskHandlerFunc) HandleTask(t Task) { f(t) }

// WorkerPool is a fixed set of goroutines sharing one FIFO task queue
type WorkerPool struct {
	numWorkers int
	handler    TaskHandler

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue
	closed bool
	wg     sync.WaitGroup

	stats struct {
		tasksSubmitted atomic.Uint64
		_              cpu.CacheLinePad
		tasksCompleted atomic.Uint64
		_              cpu.CacheLinePad
	}
}

// NewWorkerPool creates a pool of numWorkers goroutines feeding tasks to h.
// numWorkers <= 0 defaults to runtime.NumCPU().
func NewWorkerPool(numWorkers int, h TaskHandler) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	p := &WorkerPool{
		numWorkers: numWorkers,
		handler:    h,
		tasks:      queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.run()
	}

	return p
}

// Submit enqueues a task and wakes one worker. It returns false once the
// pool is closing.
func (p *WorkerPool) Submit(t Task) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.stats.tasksSubmitted.Add(1)
	p.tasks.Add(t)
	p.mu.Unlock()

	p.cond.Signal()
	return true
}

func (p *WorkerPool) run() {
	defer p.wg.Done()

	p.mu.Lock()
	for {
		if p.tasks.Length() > 0 {
			t := p.tasks.Remove().(Task)
			p.mu.Unlock()

			p.handler.HandleTask(t)
			p.stats.tasksCompleted.Add(1)

			p.mu.Lock()
			continue
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.cond.Wait()
	}
}

// Close stops accepting tasks, lets queued and in-flight tasks finish and
// waits for every worker to exit. It is safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.Lock()
	queued := p.tasks.Length()
	p.mu.Unlock()

	// completed first: it never exceeds a later read of submitted.
	completed := p.stats.tasksCompleted.Load()
	submitted := p.stats.tasksSubmitted.Load()
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPending:   submitted - completed,
		TasksQueued:    queued,
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksPending   uint64 `json:"tasks_pending"`
	TasksQueued    int    `json:"tasks_queued"`
}
