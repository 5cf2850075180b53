//go:build linux

package http

import (
	"io"

	"golang.org/x/sys/unix"
)

// Read drains the socket into the read buffer: once in level-triggered
// mode, until EAGAIN in edge-triggered mode. A peer shutdown is io.EOF;
// EAGAIN is returned as is and is not a failure.
func (c *Conn) Read() (int, error) {
	total := 0
	for {
		n, err := c.readBuf.ReadFd(c.fd)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
		if !c.opts.ET {
			return total, nil
		}
	}
}

// Write sends the planned response with writev over the header block and
// the mapped file. It loops while edge-triggered or while more than
// writeChunk bytes remain, and stops at EAGAIN.
func (c *Conn) Write() (int, error) {
	total := 0
	for {
		c.vecs = c.vecs[:0]
		for _, v := range c.iov {
			if len(v) > 0 {
				c.vecs = append(c.vecs, v)
			}
		}
		if len(c.vecs) == 0 {
			return total, nil
		}

		n, err := unix.Writev(c.fd, c.vecs)
		if err != nil {
			return total, err
		}
		total += n
		c.advance(n)

		if c.ToWriteBytes() == 0 {
			return total, nil
		}
		if !c.opts.ET && c.ToWriteBytes() <= writeChunk {
			return total, nil
		}
	}
}

func closeFd(fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
}
