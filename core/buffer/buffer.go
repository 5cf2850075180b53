// Package buffer implements the growable read/write byte window used for all
// socket I/O. A Buffer is owned by exactly one connection (or the log sink)
// and is not safe for concurrent use.
package buffer

import (
	"bytes"
	"errors"
)

// InitialSize is the capacity of a Buffer created with New(0).
const InitialSize = 1024

var crlf = []byte("\r\n")

// ErrRetrieveOverflow is returned when retrieving more bytes than are readable.
var ErrRetrieveOverflow = errors.New("buffer: retrieve beyond readable bytes")

// Buffer is a contiguous byte region with two cursors:
// 0 <= readPos <= writePos <= len(buf).
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readPos   <=   writePos    <=          len(buf)
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New creates a Buffer with the given initial capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = InitialSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// ReadableBytes returns writePos - readPos.
func (b *Buffer) ReadableBytes() int { return b.writePos - b.readPos }

// WritableBytes returns capacity - writePos.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writePos }

// PrependableBytes returns readPos.
func (b *Buffer) PrependableBytes() int { return b.readPos }

// Cap returns the size of the underlying allocation.
func (b *Buffer) Cap() int { return len(b.buf) }

// Peek returns the unread bytes without copying. The slice is only valid
// until the next mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.readPos:b.writePos] }

// FindCRLF returns the offset of the first CRLF in Peek(), or -1.
func (b *Buffer) FindCRLF() int { return bytes.Index(b.Peek(), crlf) }

// Retrieve advances the read cursor by n.
func (b *Buffer) Retrieve(n int) error {
	if n < 0 || n > b.ReadableBytes() {
		return ErrRetrieveOverflow
	}
	b.readPos += n
	return nil
}

// RetrieveUntil advances the read cursor to end, an offset into Peek().
func (b *Buffer) RetrieveUntil(end int) error {
	return b.Retrieve(end)
}

// RetrieveAll resets both cursors; the contents are zeroed.
func (b *Buffer) RetrieveAll() {
	clear(b.buf)
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllString returns the readable bytes as a string and resets the buffer.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// BeginWrite returns the writable tail. Callers that fill it must report
// the amount with HasWritten.
func (b *Buffer) BeginWrite() []byte { return b.buf[b.writePos:] }

// HasWritten advances the write cursor by n.
func (b *Buffer) HasWritten(n int) {
	if n < 0 || n > b.WritableBytes() {
		panic("buffer: HasWritten beyond writable bytes")
	}
	b.writePos += n
}

// EnsureWritable makes at least n bytes writable.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// Append copies p into the buffer.
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	copy(b.buf[b.writePos:], p)
	b.writePos += len(p)
}

// AppendString copies s into the buffer.
func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	copy(b.buf[b.writePos:], s)
	b.writePos += len(s)
}

// AppendBuffer copies the readable bytes of other into b.
func (b *Buffer) AppendBuffer(other *Buffer) {
	b.Append(other.Peek())
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}
