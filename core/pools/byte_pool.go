package pools

import "sync"

// ScratchSize is the overflow block used by scatter reads: one socket read
// can drain up to the buffer's free space plus this many bytes.
const ScratchSize = 64 * 1024

var scratchPool = sync.Pool{
	New: func() any {
		buf := make([]byte, ScratchSize)
		return &buf
	},
}

// GetScratch returns a ScratchSize block. Return it with PutScratch.
func GetScratch() *[]byte {
	return scratchPool.Get().(*[]byte)
}

// PutScratch returns a block obtained from GetScratch.
func PutScratch(buf *[]byte) {
	if cap(*buf) != ScratchSize {
		return
	}
	*buf = (*buf)[:ScratchSize]
	scratchPool.Put(buf)
}
