// Package poller wraps the kernel readiness-notification facility used by
// the reactor.
package poller

import "errors"

// ErrUnsupported is returned by NewPoller on platforms without epoll.
var ErrUnsupported = errors.New("poller: epoll is not available on this platform")

// Poller is the I/O multiplexing interface
type Poller interface {
	// Add registers fd with the given interest mask.
	Add(fd int, events uint32) error
	// Mod replaces the interest mask of fd and re-arms a one-shot registration.
	Mod(fd int, events uint32) error
	// Del unregisters fd. Unknown descriptors are not an error.
	Del(fd int) error
	// Wait blocks for up to timeoutMs milliseconds (-1 blocks indefinitely)
	// and returns the number of ready events. An interrupted wait returns 0.
	Wait(timeoutMs int) (int, error)
	// Event returns the descriptor and readiness mask of the i-th ready event
	// from the last Wait.
	Event(i int) (fd int, events uint32)
	Close() error
}
