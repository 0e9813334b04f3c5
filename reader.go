package diskbuf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/containerd/errdefs"

	"github.com/lanrat/diskbuf/internal/bufpool"
)

// Bounds of the delay between attempts when the file returns nothing for a
// range the writer has acknowledged.
const (
	minRetryDelay = time.Millisecond
	maxRetryDelay = 100 * time.Millisecond
)

// ReaderOption configures a Reader created by Writer.NewReader.
type ReaderOption func(*Reader) error

// WithOffset starts the reader at byte off instead of the beginning. If the
// writer has not reached off yet, the first read waits until it does, or
// returns io.EOF if the writer finishes short of it.
func WithOffset(off int64) ReaderOption {
	return func(r *Reader) error {
		if off < 0 {
			return fmt.Errorf("diskbuf: negative reader offset %d: %w", off, errdefs.ErrInvalidArgument)
		}
		r.offset.Store(off)
		return nil
	}
}

// Reader is an independent cursor over a Writer's file. It never reads past
// what the writer has acknowledged, and blocks when it has caught up until
// the writer appends more, finishes, or fails.
//
// A Reader detaches from its writer when it reaches the end of the data or
// is closed, whichever happens first. Errors on one reader never affect the
// writer or other readers.
//
// Like any io.Reader, a Reader must not be read from concurrently.
type Reader struct {
	w      *Writer
	offset atomic.Int64

	closed     chan struct{}
	closeOnce  sync.Once
	detachOnce sync.Once

	mu  sync.Mutex
	err error
}

func newReader(w *Writer) *Reader {
	return &Reader{
		w:      w,
		closed: make(chan struct{}),
	}
}

// Read reads up to len(p) bytes, blocking while no unread data is available.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext is Read with cancellation. Canceling ctx interrupts a blocked
// read without closing the reader.
func (r *Reader) ReadContext(ctx context.Context, p []byte) (int, error) {
	if err := r.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	select {
	case <-r.w.ready:
	case <-r.closed:
		return 0, r.Err()
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	var delay time.Duration
	for {
		if err := r.Err(); err != nil {
			return 0, err
		}

		size, finished, file, notify := r.w.observe()
		off := r.offset.Load()
		unread := size - off
		if unread <= 0 {
			if finished {
				r.detach()
				return 0, io.EOF
			}
			select {
			case <-notify:
				continue
			case <-r.closed:
				return 0, r.Err()
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		if file == nil {
			return 0, firstError(r.Err(), ErrReadAfterDestroyed)
		}

		n, err := file.ReadAt(p[:min(int64(len(p)), unread)], off)
		if n > 0 {
			r.offset.Add(int64(n))
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			// the writer may have failed and closed the file under us
			if rerr := r.Err(); rerr != nil {
				return 0, rerr
			}
			err = NewDiskError(err, "read", file.Name())
			r.destroy(err)
			return 0, err
		}
		// Nothing came back although the writer acknowledged the range.
		// Only the writer's state decides end of data, so try again later.
		delay = min(max(2*delay, minRetryDelay), maxRetryDelay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-notify:
			timer.Stop()
		case <-r.closed:
			timer.Stop()
			return 0, r.Err()
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		}
	}
}

// WriteTo copies everything up to end of data into dst.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	return r.Copy(context.Background(), dst)
}

// Copy is WriteTo with cancellation.
func (r *Reader) Copy(ctx context.Context, dst io.Writer) (int64, error) {
	bufp := bufpool.Get()
	defer bufpool.Put(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := r.ReadContext(ctx, buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
			if m != n {
				return total, io.ErrShortWrite
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

// Close detaches the reader. Further reads return ErrReaderClosed.
func (r *Reader) Close() error {
	r.destroy(nil)
	return nil
}

// CloseWithError detaches the reader. Further reads return err, or
// ErrReaderClosed if err is nil.
func (r *Reader) CloseWithError(err error) error {
	r.destroy(err)
	return nil
}

// Offset returns the position of the next byte the reader will return.
func (r *Reader) Offset() int64 {
	return r.offset.Load()
}

// Err returns the error the reader was closed with, if any.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reader) destroy(err error) {
	r.closeOnce.Do(func() {
		if err == nil {
			err = ErrReaderClosed
		}
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.closed)
	})
	r.detach()
}

func (r *Reader) detach() {
	r.detachOnce.Do(func() {
		r.w.detach(r)
	})
}
