package diskbuf

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/containerd/log"

	"github.com/lanrat/diskbuf/exitcleanup"
	"github.com/lanrat/diskbuf/internal/bufpool"
	"github.com/lanrat/diskbuf/tempfile"
)

// Writer appends bytes to a temporary file that any number of Readers can
// consume concurrently. It owns the file: it creates it, appends to it, and
// finally closes and removes it once it has been released and every attached
// reader has detached, or immediately when destroyed with an error.
//
// Writes must not be issued concurrently with each other; if they are, they
// are serialized in an unspecified order.
type Writer struct {
	ctx    context.Context
	config Config

	ready chan struct{} // closed once the open attempt has finished
	done  chan struct{} // closed once teardown has finished

	// writeMu serializes appends with each other, with Close and with
	// teardown, so the file is never closed under an in-flight write.
	writeMu sync.Mutex

	mu               sync.Mutex
	file             tempfile.File
	path             string
	handle           exitcleanup.Handle
	registered       bool
	size             int64 // bytes acknowledged by the file; never decreases
	notify           chan struct{}
	readers          map[*Reader]struct{}
	finished         bool
	releaseRequested bool
	destroying       bool
	destroyed        bool
	destroyErr       error
	result           error
}

// New returns a Writer and starts creating its backing file in the
// background. Writes and reads issued before the file exists wait for it.
// If the file cannot be created the writer is destroyed with a *SetupError.
// ctx is used for logging and is passed to the Opener.
func New(ctx context.Context, config *Config) *Writer {
	w := &Writer{
		ctx:     ctx,
		config:  *mergeConfig(config),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		notify:  make(chan struct{}),
		readers: make(map[*Reader]struct{}),
	}
	go w.open()
	return w
}

func (w *Writer) open() {
	f, err := w.config.Opener(w.ctx)
	if err != nil {
		err = NewSetupError(err)
		log.G(w.ctx).WithError(err).Warn("diskbuf: failed to create backing file")
		w.Destroy(err)
		close(w.ready)
		return
	}

	path := f.Name()
	handle := w.config.Registry.Register(f, path)

	w.mu.Lock()
	w.file = f
	w.path = path
	w.handle = handle
	w.registered = true
	w.broadcastLocked()
	w.mu.Unlock()
	close(w.ready)

	log.G(w.ctx).WithField("path", path).Debug("diskbuf: backing file created")
}

// Ready returns a channel that is closed once the backing file has been
// created, or creation has failed.
func (w *Writer) Ready() <-chan struct{} {
	return w.ready
}

// Done returns a channel that is closed once the file has been closed and
// removed.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Write appends p to the file. It blocks until the file exists and until
// earlier writes have completed. The bytes become visible to readers only
// once the file has acknowledged them. A failed write destroys the writer
// with the returned error.
func (w *Writer) Write(p []byte) (int, error) {
	<-w.ready

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	if w.destroying {
		err := w.destroyedErrLocked()
		w.mu.Unlock()
		return 0, err
	}
	if w.finished {
		w.mu.Unlock()
		return 0, ErrWriteAfterFinish
	}
	f, path, off := w.file, w.path, w.size
	w.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.WriteAt(p, off)
	if err != nil {
		err = NewDiskError(err, "write", path)
		w.Destroy(err)
		return n, err
	}

	w.mu.Lock()
	w.size += int64(n)
	w.broadcastLocked()
	w.mu.Unlock()
	return n, nil
}

// ReadFrom appends everything read from src until io.EOF.
func (w *Writer) ReadFrom(src io.Reader) (int64, error) {
	bufp := bufpool.Get()
	defer bufpool.Put(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Close marks the end of the input. Readers that have consumed everything
// written so far see io.EOF instead of waiting for more. Close does not
// release the file; see Release and Destroy.
func (w *Writer) Close() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroying {
		return w.destroyedErrLocked()
	}
	if !w.finished {
		w.finished = true
		w.broadcastLocked()
	}
	return nil
}

// Release asks for the file to be removed as soon as no readers are
// attached. Readers already attached keep reading undisturbed; new readers
// can no longer attach.
func (w *Writer) Release() {
	w.mu.Lock()
	w.releaseRequested = true
	idle := len(w.readers) == 0
	w.mu.Unlock()

	if idle {
		w.Destroy(nil)
	}
}

// Destroy tears the writer down. Without an error and with readers still
// attached it behaves like Release. With an error, every attached reader is
// closed with that same error and the file is closed and removed right away.
// Destroy does not wait for teardown to finish; use Wait for that.
func (w *Writer) Destroy(err error) {
	w.mu.Lock()
	if w.destroying {
		w.mu.Unlock()
		return
	}
	if err == nil && len(w.readers) > 0 {
		w.releaseRequested = true
		n := len(w.readers)
		w.mu.Unlock()
		log.G(w.ctx).WithField("readers", n).Debug("diskbuf: destroy deferred until readers detach")
		return
	}

	w.destroying = true
	w.destroyErr = err
	readers := make([]*Reader, 0, len(w.readers))
	for r := range w.readers {
		readers = append(readers, r)
	}
	clear(w.readers)
	w.broadcastLocked()
	w.mu.Unlock()

	for _, r := range readers {
		r.destroy(err)
	}
	go w.teardown()
}

// teardown closes and removes the file once open and any in-flight write
// have finished. A file already closed by the exit cleanup, or already
// removed, is not an error.
func (w *Writer) teardown() {
	<-w.ready

	w.writeMu.Lock()
	w.mu.Lock()
	f, path, handle, registered, destroyErr := w.file, w.path, w.handle, w.registered, w.destroyErr
	w.file = nil
	w.mu.Unlock()

	var closeErr, unlinkErr error
	if f != nil {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			closeErr = NewDiskError(err, "close", path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			unlinkErr = NewDiskError(err, "unlink", path)
		}
		// a file that could not be removed stays registered so the exit
		// cleanup gets another try
		if unlinkErr == nil && registered {
			w.config.Registry.Unregister(handle)
		}
	}
	w.writeMu.Unlock()

	result := firstError(unlinkErr, closeErr, destroyErr)

	w.mu.Lock()
	w.destroyed = true
	w.result = result
	size := w.size
	w.broadcastLocked()
	w.mu.Unlock()
	close(w.done)

	logger := log.G(w.ctx).WithFields(log.Fields{"path": path, "size": size})
	if unlinkErr != nil || closeErr != nil {
		logger.WithError(firstError(unlinkErr, closeErr)).Warn("diskbuf: teardown incomplete")
	} else {
		logger.Debug("diskbuf: backing file removed")
	}
}

// Wait blocks until teardown has finished and returns its result: the
// unlink error, else the close error, else the error given to Destroy.
func (w *Writer) Wait(ctx context.Context) error {
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// NewReader attaches a new Reader to the buffer. By default it starts at the
// beginning of the data, however much has been written already.
// It fails with ErrReadAfterDestroyed once the writer is being destroyed, and
// with ErrReadAfterReleased once Release has been requested.
func (w *Writer) NewReader(opts ...ReaderOption) (*Reader, error) {
	r := newReader(w)
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroying {
		return nil, ErrReadAfterDestroyed
	}
	if w.releaseRequested {
		return nil, ErrReadAfterReleased
	}
	w.readers[r] = struct{}{}
	return r, nil
}

// detach removes r from the attached set, starting teardown when it was the
// last reader of a released writer. Detaching twice is a no-op.
func (w *Writer) detach(r *Reader) {
	w.mu.Lock()
	if _, ok := w.readers[r]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.readers, r)
	last := len(w.readers) == 0 && w.releaseRequested && !w.destroying
	w.mu.Unlock()

	if last {
		w.Destroy(nil)
	}
}

// observe returns a consistent snapshot of what readers poll. The returned
// channel is closed on the next state change.
func (w *Writer) observe() (size int64, finished bool, file tempfile.File, notify <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size, w.finished, w.file, w.notify
}

// broadcastLocked wakes everything waiting on the current notify channel.
func (w *Writer) broadcastLocked() {
	close(w.notify)
	w.notify = make(chan struct{})
}

func (w *Writer) destroyedErrLocked() error {
	if w.destroyErr != nil {
		return w.destroyErr
	}
	return ErrWriteAfterDestroyed
}

// Name returns the path of the backing file, or "" before it exists.
func (w *Writer) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Size returns the number of bytes written and acknowledged so far.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Finished reports whether Close has been called.
func (w *Writer) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// Readers returns the number of attached readers.
func (w *Writer) Readers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.readers)
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.destroyed:
		return StateDestroyed
	case w.destroying:
		return StateDestroying
	case w.releaseRequested:
		return StateReleasePending
	case w.file == nil:
		return StateOpening
	case w.finished:
		return StateFinished
	default:
		return StateOpen
	}
}
