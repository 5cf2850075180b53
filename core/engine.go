//go:build linux

package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/xiaqy71/myWebServer/core/http"
	"github.com/xiaqy71/myWebServer/core/poller"
	"github.com/xiaqy71/myWebServer/core/pools"
	"github.com/xiaqy71/myWebServer/core/timer"
	"github.com/xiaqy71/myWebServer/logger"
)

// Options configures an Engine.
type Options struct {
	// Port to listen on; 0 picks an ephemeral port.
	Port int
	// TrigMode selects level or edge triggering:
	// 0 LT+LT, 1 LT listen + ET conn, 2 ET listen + LT conn, 3 ET+ET.
	// Any other value behaves as 3.
	TrigMode int
	// Timeout evicts idle connections; <= 0 disables eviction.
	Timeout time.Duration
	// OptLinger enables SO_LINGER with a one second linger.
	OptLinger      bool
	ThreadNum      int
	SrcDir         string
	MaxConnections int
	MaxEvents      int
}

// Engine is the reactor: one goroutine waits on epoll and ticks the idle
// timer, a fixed worker pool performs connection I/O. Connections are
// registered EPOLLONESHOT so at most one worker owns a connection between
// re-arms.
type Engine struct {
	opts     Options
	log      *logger.Logger
	connOpts *http.ConnOptions
	live     atomic.Int64

	listenFd    int
	wakeFd      int
	port        int
	listenEvent uint32
	connEvent   uint32

	poller   poller.Poller
	timer    *timer.HeapTimer
	workers  *pools.WorkerPool
	connPool *pools.ConnectionPool[*http.Conn]

	connections map[int]*http.Conn
	connMu      sync.RWMutex
	nextID      atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	serving  atomic.Bool
	closing  atomic.Bool
	done     chan struct{}
	shutdown sync.Once

	// test hooks
	onArm      func(connID uint64)
	onDispatch func(t pools.Task)
}

// NewEngine validates opts and creates an engine. Sockets are opened by
// Listen.
func NewEngine(opts Options, log *logger.Logger, verifier http.Verifier) (*Engine, error) {
	if opts.Port != 0 && (opts.Port < minPort || opts.Port > maxPort) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, opts.Port)
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.ThreadNum <= 0 {
		opts.ThreadNum = runtime.NumCPU()
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = poller.DefaultMaxEvents
	}
	if log == nil {
		log = logger.Nop()
	}

	e := &Engine{
		opts:        opts,
		log:         log,
		listenFd:    -1,
		wakeFd:      -1,
		connections: make(map[int]*http.Conn, 1024),
		done:        make(chan struct{}),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.initEventMode(opts.TrigMode)

	e.connOpts = &http.ConnOptions{
		SrcDir:   opts.SrcDir,
		ET:       e.connEvent&poller.EventET != 0,
		Verifier: verifier,
		Log:      log,
		Live:     &e.live,
	}
	e.connPool = pools.NewConnectionPool(func() *http.Conn {
		return http.NewConn(e.connOpts)
	})
	e.timer = timer.New(e.onTimer)
	e.workers = pools.NewWorkerPool(opts.ThreadNum, e)

	return e, nil
}

func (e *Engine) initEventMode(mode int) {
	e.listenEvent = poller.EventRDHup
	e.connEvent = poller.EventOneShot | poller.EventRDHup
	switch mode {
	case 0:
	case 1:
		e.connEvent |= poller.EventET
	case 2:
		e.listenEvent |= poller.EventET
	default:
		e.listenEvent |= poller.EventET
		e.connEvent |= poller.EventET
	}
}

func modeName(events uint32) string {
	if events&poller.EventET != 0 {
		return "ET"
	}
	return "LT"
}

// Listen opens the epoll instance, the wake eventfd and the listening
// socket.
func (e *Engine) Listen() error {
	p, err := poller.NewPoller(e.opts.MaxEvents)
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}
	e.poller = p

	e.wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		e.abortListen()
		return fmt.Errorf("create eventfd: %w", err)
	}
	if err := e.poller.Add(e.wakeFd, poller.EventIn); err != nil {
		e.abortListen()
		return fmt.Errorf("register eventfd: %w", err)
	}

	if err := e.initSocket(); err != nil {
		e.abortListen()
		return err
	}

	e.log.Infof("========== Server init ==========")
	e.log.Infof("Port:%d, OpenLinger: %t", e.port, e.opts.OptLinger)
	e.log.Infof("Listen Mode: %s, OpenConn Mode: %s", modeName(e.listenEvent), modeName(e.connEvent))
	e.log.Infof("LogSys level: %s", e.log.Level())
	e.log.Infof("srcDir: %s", e.opts.SrcDir)
	e.log.Infof("ThreadPool num: %d, Timeout: %s", e.opts.ThreadNum, e.opts.Timeout)
	return nil
}

// abortListen undoes a failed Listen so that Serve reports ErrNotListening.
func (e *Engine) abortListen() {
	e.closeFds()
	e.poller = nil
}

func (e *Engine) initSocket() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("create socket: %w", err)
	}
	e.listenFd = fd

	if e.opts.OptLinger {
		// Close waits up to a second for unsent data.
		linger := &unix.Linger{Onoff: 1, Linger: 1}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, linger); err != nil {
			return fmt.Errorf("set SO_LINGER: %w", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: e.opts.Port}); err != nil {
		return fmt.Errorf("bind port %d: %w", e.opts.Port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("listen port %d: %w", e.opts.Port, err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		e.port = in4.Port
	}

	if err := e.poller.Add(fd, e.listenEvent|poller.EventIn); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}
	return nil
}

// Addr returns the bound address.
func (e *Engine) Addr() netip.AddrPort {
	return netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(e.port))
}

// Port returns the bound port, useful when Options.Port was 0.
func (e *Engine) Port() int { return e.port }

// Serve runs the reactor loop until Shutdown.
func (e *Engine) Serve() error {
	if e.closing.Load() {
		return ErrServerClosed
	}
	if e.poller == nil {
		return ErrNotListening
	}
	if !e.serving.CompareAndSwap(false, true) {
		if e.closing.Load() {
			return ErrServerClosed
		}
		return ErrAlreadyServed
	}
	defer close(e.done)

	e.log.Infof("========== Server start ==========")
	for !e.closing.Load() {
		timeout := -1
		if e.opts.Timeout > 0 {
			timeout = e.timer.GetNextTick()
		}

		n, err := e.poller.Wait(timeout)
		if err != nil {
			e.log.Errorf("epoll wait: %v", err)
			return fmt.Errorf("epoll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd, events := e.poller.Event(i)
			switch {
			case fd == e.wakeFd:
				e.drainWake()
			case fd == e.listenFd:
				e.dealListen()
			case events&(poller.EventRDHup|poller.EventHup|poller.EventErr) != 0:
				e.dealClose(fd)
			case events&poller.EventIn != 0:
				e.dealEvent(fd, pools.TaskRead)
			case events&poller.EventOut != 0:
				e.dealEvent(fd, pools.TaskWrite)
			default:
				e.log.Errorf("Unexpected event %#x on fd %d", events, fd)
			}
		}
	}
	return nil
}

// Run is Listen followed by Serve.
func (e *Engine) Run() error {
	if err := e.Listen(); err != nil {
		return err
	}
	return e.Serve()
}

// Shutdown stops the reactor, lets queued tasks finish and closes every
// connection and descriptor. It is safe to call more than once.
func (e *Engine) Shutdown() {
	e.shutdown.Do(func() {
		e.closing.Store(true)
		e.wake()
		// Claim serving so a later Serve returns ErrServerClosed; otherwise
		// wait for the running loop to exit.
		if !e.serving.CompareAndSwap(false, true) {
			<-e.done
		}

		// In-flight credential checks give up rather than wait on the store.
		e.cancel()
		e.workers.Close()

		e.connMu.RLock()
		conns := make([]*http.Conn, 0, len(e.connections))
		for _, c := range e.connections {
			conns = append(conns, c)
		}
		e.connMu.RUnlock()
		for _, c := range conns {
			c.Lock()
			e.closeConn(c)
			c.Unlock()
		}

		e.timer.Clear()
		e.closeFds()
		e.log.Infof("========== Server stop ==========")
		e.log.Infof("%s", e.Stats())
	})
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	e.connMu.RLock()
	tracked := len(e.connections)
	e.connMu.RUnlock()

	return Stats{
		Connections:  e.live.Load(),
		Tracked:      tracked,
		TimerEntries: e.timer.Len(),
		Workers:      e.workers.Stats(),
		ConnPool:     e.connPool.Stats(),
	}
}

func (e *Engine) wake() {
	if e.wakeFd < 0 {
		return
	}
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	unix.Write(e.wakeFd, b[:])
}

func (e *Engine) drainWake() {
	var b [8]byte
	unix.Read(e.wakeFd, b[:])
}

func (e *Engine) closeFds() {
	if e.listenFd >= 0 {
		unix.Close(e.listenFd)
		e.listenFd = -1
	}
	if e.poller != nil {
		e.poller.Close()
	}
	if e.wakeFd >= 0 {
		unix.Close(e.wakeFd)
		e.wakeFd = -1
	}
}

func (e *Engine) dealListen() {
	for {
		fd, sa, err := unix.Accept4(e.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
				e.log.Errorf("accept: %v", err)
			}
			return
		}

		if e.live.Load() >= int64(e.opts.MaxConnections) {
			unix.Write(fd, []byte(busyMessage))
			unix.Close(fd)
			e.log.Warnf("Clients is full!")
		} else {
			e.addClient(fd, sockaddrToAddrPort(sa))
		}

		if e.listenEvent&poller.EventET == 0 {
			return
		}
	}
}

func (e *Engine) addClient(fd int, addr netip.AddrPort) {
	id := e.nextID.Add(1)
	conn := e.connPool.Get()
	conn.Lock()
	conn.Init(fd, addr, id)
	conn.Unlock()

	e.connMu.Lock()
	e.connections[fd] = conn
	e.connMu.Unlock()

	if e.opts.Timeout > 0 {
		e.timer.Add(fd, e.opts.Timeout, timer.Action{Kind: timer.ActionClose, FD: fd, ConnID: id})
	}
	if e.onArm != nil {
		e.onArm(id)
	}
	if err := e.poller.Add(fd, poller.EventIn|e.connEvent); err != nil {
		e.log.Errorf("Client[%d] register: %v", fd, err)
		conn.Lock()
		e.closeConn(conn)
		conn.Unlock()
	}
}

func (e *Engine) lookup(fd int) *http.Conn {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.connections[fd]
}

// dealClose handles hang-up and error events. The connection is armed, so
// any worker still holding it is finishing its re-arm.
func (e *Engine) dealClose(fd int) {
	conn := e.lookup(fd)
	if conn == nil {
		return
	}
	conn.Lock()
	e.closeConn(conn)
	conn.Unlock()
}

func (e *Engine) dealEvent(fd int, kind pools.TaskKind) {
	conn := e.lookup(fd)
	if conn == nil {
		return
	}
	id := conn.ID()
	e.extendTime(fd)
	e.dispatch(pools.Task{Kind: kind, FD: fd, ConnID: id})
}

func (e *Engine) dispatch(t pools.Task) bool {
	if e.onDispatch != nil {
		e.onDispatch(t)
	}
	return e.workers.Submit(t)
}

func (e *Engine) extendTime(fd int) {
	if e.opts.Timeout > 0 {
		e.timer.Adjust(fd, e.opts.Timeout)
	}
}

// onTimer runs on the reactor goroutine. A connection owned by a worker is
// busy, not idle, so its deadline is pushed back instead.
func (e *Engine) onTimer(a timer.Action) {
	if a.Kind != timer.ActionClose {
		return
	}
	conn := e.lookup(a.FD)
	if conn == nil {
		return
	}
	if !conn.TryLock() {
		e.timer.Add(a.FD, e.opts.Timeout, a)
		return
	}
	defer conn.Unlock()

	if conn.ID() != a.ConnID || conn.Closed() {
		return
	}
	e.log.Infof("Client[%d](%s) idle timeout", a.FD, conn.Addr())
	e.closeConn(conn)
}

// closeConn tears a connection down. The caller holds the connection lock.
func (e *Engine) closeConn(conn *http.Conn) {
	if conn.Closed() {
		return
	}
	fd := conn.Fd()
	if e.poller != nil {
		if err := e.poller.Del(fd); err != nil {
			e.log.Warnf("Client[%d] epoll del: %v", fd, err)
		}
	}

	e.connMu.Lock()
	if e.connections[fd] == conn {
		delete(e.connections, fd)
	}
	e.connMu.Unlock()

	// The fd is still open here, so no newer connection can own the entry.
	e.timer.Remove(fd)
	conn.Close()
	e.connPool.Put(conn)
}

// HandleTask implements pools.TaskHandler. Tasks for a descriptor that now
// belongs to a different connection are dropped.
func (e *Engine) HandleTask(t pools.Task) {
	conn := e.lookup(t.FD)
	if conn == nil {
		return
	}
	conn.Lock()
	defer conn.Unlock()
	if conn.Closed() || conn.ID() != t.ConnID {
		return
	}

	switch t.Kind {
	case pools.TaskRead:
		e.onRead(conn)
	case pools.TaskWrite:
		e.onWrite(conn)
	case pools.TaskProcess:
		e.onProcess(conn)
	}
}

func (e *Engine) onRead(conn *http.Conn) {
	if _, err := conn.Read(); err != nil && !errors.Is(err, unix.EAGAIN) {
		e.closeConn(conn)
		return
	}
	e.onProcess(conn)
}

func (e *Engine) onProcess(conn *http.Conn) {
	next := poller.EventIn
	if conn.Process(e.ctx) {
		next = poller.EventOut
	}
	e.rearm(conn, next)
}

func (e *Engine) onWrite(conn *http.Conn) {
	_, err := conn.Write()
	switch {
	case conn.ToWriteBytes() == 0:
		if conn.IsKeepAlive() {
			e.extendTime(conn.Fd())
			if e.dispatch(pools.Task{Kind: pools.TaskProcess, FD: conn.Fd(), ConnID: conn.ID()}) {
				return
			}
		}
	case err == nil || errors.Is(err, unix.EAGAIN):
		e.rearm(conn, poller.EventOut)
		return
	}
	e.closeConn(conn)
}

// rearm is the last step of every handler.
func (e *Engine) rearm(conn *http.Conn, events uint32) {
	if e.onArm != nil {
		e.onArm(conn.ID())
	}
	if err := e.poller.Mod(conn.Fd(), e.connEvent|events); err != nil {
		e.log.Errorf("Client[%d] epoll mod: %v", conn.Fd(), err)
		e.closeConn(conn)
	}
}

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port))
	default:
		return netip.AddrPort{}
	}
}
