// Package bufpool provides pooled copy buffers for moving data in and out of
// disk buffers.
package bufpool

import "sync"

// Size matches the buffer io.Copy allocates for itself.
const Size = 32 * 1024

var pool = sync.Pool{
	New: func() any {
		buf := make([]byte, Size)
		return &buf
	},
}

// Get returns a pooled buffer of Size bytes.
func Get() *[]byte {
	return pool.Get().(*[]byte)
}

// Put returns a buffer to the pool.
func Put(buf *[]byte) {
	if buf == nil || len(*buf) != Size {
		return
	}
	pool.Put(buf)
}
