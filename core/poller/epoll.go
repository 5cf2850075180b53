//go:build linux

package poller

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Readiness and interest bits.
const (
	EventIn      = uint32(unix.EPOLLIN)
	EventOut     = uint32(unix.EPOLLOUT)
	EventRDHup   = uint32(unix.EPOLLRDHUP)
	EventHup     = uint32(unix.EPOLLHUP)
	EventErr     = uint32(unix.EPOLLERR)
	EventOneShot = uint32(unix.EPOLLONESHOT)
	EventET      = uint32(unix.EPOLLET)
)

// DefaultMaxEvents is the size of the ready list when NewPoller gets 0.
const DefaultMaxEvents = 1024

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
	ready  int
}

// NewPoller creates a new Poller (Linux)
func NewPoller(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Mod changes the interest mask of a registered descriptor
func (p *EpollPoller) Mod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Del removes a file descriptor from the watch list
func (p *EpollPoller) Del(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
		return nil
	}
	return err
}

// Wait waits for I/O events
func (p *EpollPoller) Wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		p.ready = 0
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	p.ready = n
	return n, nil
}

// Event returns the i-th ready event of the last Wait
func (p *EpollPoller) Event(i int) (int, uint32) {
	if i < 0 || i >= p.ready {
		return -1, 0
	}
	ev := p.events[i]
	return int(ev.Fd), ev.Events
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
