package tempfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

var mockSeq atomic.Uint64

// Mock is an in-memory File. It never touches the disk, and lets tests inject
// failures into writes, reads and closes, or force reads to come back empty.
// It is safe for concurrent use.
type Mock struct {
	mu         sync.Mutex
	name       string
	data       []byte
	closed     bool
	writeErr   error
	readErr    error
	closeErr   error
	shortReads int
	closes     int
}

// NewMock returns an empty Mock. Its name is a path in the OS temp directory
// that does not exist on disk.
func NewMock() *Mock {
	name := filepath.Join(os.TempDir(), fmt.Sprintf("diskbuf-mock-%d-%d", os.Getpid(), mockSeq.Add(1)))
	return &Mock{name: name}
}

// MockOpener returns an Opener that hands out m.
func MockOpener(m *Mock) Opener {
	return func(context.Context) (File, error) {
		return m, nil
	}
}

// Name returns the mock's path.
func (m *Mock) Name() string {
	return m.name
}

// WriteAt stores p at off, growing the data as needed.
func (m *Mock) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	return copy(m.data[off:end], p), nil
}

// ReadAt follows the io.ReaderAt contract, returning io.EOF for reads that
// reach the end of the data.
func (m *Mock) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.shortReads > 0 {
		m.shortReads--
		return 0, nil
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close marks the mock closed. Closing twice returns os.ErrClosed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	if m.closed {
		return os.ErrClosed
	}
	m.closed = true
	return m.closeErr
}

// Bytes returns a copy of everything written so far.
func (m *Mock) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Closes returns how many times Close has been called.
func (m *Mock) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// FailWrites makes every following WriteAt return err. A nil err clears it.
func (m *Mock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailReads makes every following ReadAt return err. A nil err clears it.
func (m *Mock) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailClose makes Close return err.
func (m *Mock) FailClose(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// ShortReads makes the next n ReadAt calls return zero bytes and no error.
func (m *Mock) ShortReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortReads = n
}
