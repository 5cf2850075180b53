//go:build linux

package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/xiaqy71/myWebServer/core/pools"
)

// ReadFd performs one scatter read: the writable tail is filled first and any
// overflow lands in a 64KB scratch block that is appended afterwards, so a
// single syscall drains up to WritableBytes()+64KB with at most one growth.
//
// It returns the bytes read. A would-block condition is reported as
// unix.EAGAIN; (0, nil) means the peer shut down its write side.
func (b *Buffer) ReadFd(fd int) (int, error) {
	scratch := pools.GetScratch()
	defer pools.PutScratch(scratch)
	extra := *scratch

	writable := b.WritableBytes()
	n, err := unix.Readv(fd, [][]byte{b.buf[b.writePos:], extra})
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region with a single write and advances the
// read cursor by the amount actually written.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	b.readPos += n
	return n, nil
}
