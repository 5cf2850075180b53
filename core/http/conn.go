package http

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/xiaqy71/myWebServer/core/buffer"
	"github.com/xiaqy71/myWebServer/logger"
)

// writeChunk is the amount of pending output above which a level-triggered
// Write keeps looping instead of waiting for the next EPOLLOUT.
const writeChunk = 10240

// maxPending bounds the unparsed bytes a connection may accumulate.
const maxPending = MaxBodySize + 64<<10

// ConnOptions is shared by every connection of a server.
type ConnOptions struct {
	SrcDir   string
	ET       bool
	Verifier Verifier
	Log      *logger.Logger
	// Live counts open connections; Init increments it and Close
	// decrements it once.
	Live *atomic.Int64
}

// Conn is the per-socket state: buffers, the request being parsed and the
// planned response. Workers hold the ownership lock for the whole of a
// read, process or write step.
type Conn struct {
	mu sync.Mutex

	fd   int
	id   uint64
	addr netip.AddrPort

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer
	req      *Request
	resp     *Response

	// iov[0] is the unwritten header block, iov[1] the unwritten file body.
	iov       [2][]byte
	vecs      [][]byte
	keepAlive bool
	closed    atomic.Bool

	opts *ConnOptions
}

// NewConn allocates a connection bound to opts.
func NewConn(opts *ConnOptions) *Conn {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Live == nil {
		opts.Live = new(atomic.Int64)
	}
	c := &Conn{
		fd:       -1,
		readBuf:  buffer.New(0),
		writeBuf: buffer.New(0),
		req:      NewRequest(opts.Verifier, opts.Log),
		resp:     NewResponse(opts.Log),
		vecs:     make([][]byte, 0, 2),
		opts:     opts,
	}
	c.closed.Store(true)
	return c
}

// Init binds the connection to an accepted socket.
func (c *Conn) Init(fd int, addr netip.AddrPort, id uint64) {
	c.fd = fd
	c.addr = addr
	c.id = id
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.req.Reset()
	c.iov = [2][]byte{}
	c.keepAlive = false
	c.closed.Store(false)

	live := c.opts.Live.Add(1)
	c.opts.Log.Infof("Client[%d](%s) in, userCount:%d", fd, addr, live)
}

// Reset clears a closed connection for reuse by another socket.
func (c *Conn) Reset() {
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.req.Reset()
	c.resp.UnmapFile()
	c.iov = [2][]byte{}
	c.keepAlive = false
	c.fd = -1
	c.id = 0
	c.addr = netip.AddrPort{}
}

// Lock takes ownership of the connection.
func (c *Conn) Lock() { c.mu.Lock() }

// TryLock takes ownership only if no worker holds it.
func (c *Conn) TryLock() bool { return c.mu.TryLock() }

// Unlock releases ownership.
func (c *Conn) Unlock() { c.mu.Unlock() }

// Fd returns the socket descriptor.
func (c *Conn) Fd() int { return c.fd }

// ID returns the unique connection id.
func (c *Conn) ID() uint64 { return c.id }

// Addr returns the peer address.
func (c *Conn) Addr() netip.AddrPort { return c.addr }

// Closed reports whether Close has run.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Request returns the request being parsed.
func (c *Conn) Request() *Request { return c.req }

// Response returns the last planned response.
func (c *Conn) Response() *Response { return c.resp }

// ReadBuffer returns the input buffer.
func (c *Conn) ReadBuffer() *buffer.Buffer { return c.readBuf }

// IsKeepAlive reports whether the connection stays open after the planned
// response is written.
func (c *Conn) IsKeepAlive() bool { return c.keepAlive }

// ToWriteBytes returns the bytes left in both write vectors.
func (c *Conn) ToWriteBytes() int { return len(c.iov[0]) + len(c.iov[1]) }

// Process parses buffered input. It returns false when no complete request
// is available yet; true means a response has been planned: 200 for a
// parsed request, 400 for a malformed one and 500 when the credential
// check failed.
func (c *Conn) Process(ctx context.Context) bool {
	if c.readBuf.ReadableBytes() == 0 {
		return false
	}

	finished, err := c.req.Parse(ctx, c.readBuf)
	if err == nil && !finished && c.readBuf.ReadableBytes() > maxPending {
		err = ErrMalformedRequest
	}

	code, keepAlive := StatusOK, false
	switch {
	case errors.Is(err, ErrMalformedRequest):
		c.opts.Log.Warnf("Client[%d](%s) bad request: %v", c.fd, c.addr, err)
		code = StatusBadRequest
		c.readBuf.RetrieveAll()
	case err != nil:
		c.opts.Log.Errorf("Client[%d](%s) %v", c.fd, c.addr, err)
		code, keepAlive = StatusInternalServerError, c.req.IsKeepAlive()
	case !finished:
		return false
	default:
		c.opts.Log.Debugf("%s", c.req.Path)
		keepAlive = c.req.IsKeepAlive()
	}

	c.resp.Init(c.opts.SrcDir, c.req.Path, keepAlive, code)
	c.writeBuf.RetrieveAll()
	c.resp.MakeResponse(c.writeBuf)
	c.keepAlive = keepAlive

	c.iov[0] = c.writeBuf.Peek()
	c.iov[1] = c.resp.File()
	c.req.Reset()

	c.opts.Log.Debugf("filesize:%d, to %d", c.resp.FileLen(), c.ToWriteBytes())
	return true
}

// advance drops n written bytes from the front of the vectors.
func (c *Conn) advance(n int) {
	if head := len(c.iov[0]); n >= head {
		c.iov[1] = c.iov[1][n-head:]
		if head > 0 {
			c.writeBuf.RetrieveAll()
			c.iov[0] = nil
		}
		return
	}
	c.iov[0] = c.iov[0][n:]
	_ = c.writeBuf.Retrieve(n)
}

// Close unmaps the response file, closes the socket and decrements the live
// counter. Only the first call has an effect.
func (c *Conn) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.resp.UnmapFile()
	c.iov = [2][]byte{}
	closeFd(c.fd)

	live := c.opts.Live.Add(-1)
	c.opts.Log.Infof("Client[%d](%s) quit, userCount:%d", c.fd, c.addr, live)
}
