package diskbuf

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrReadAfterDestroyed is returned by NewReader once the writer has been
	// destroyed or is being torn down.
	ErrReadAfterDestroyed = fmt.Errorf("diskbuf: cannot attach a reader after the buffer was destroyed: %w", errdefs.ErrFailedPrecondition)

	// ErrReadAfterReleased is returned by NewReader once Release has been
	// called, even while earlier readers are still attached.
	ErrReadAfterReleased = fmt.Errorf("diskbuf: cannot attach a reader after the buffer was released: %w", errdefs.ErrFailedPrecondition)

	// ErrWriteAfterFinish is returned by Write after Close.
	ErrWriteAfterFinish = fmt.Errorf("diskbuf: write after close: %w", errdefs.ErrFailedPrecondition)

	// ErrWriteAfterDestroyed is returned by Write once the writer is destroyed.
	ErrWriteAfterDestroyed = fmt.Errorf("diskbuf: write after destroy: %w", errdefs.ErrFailedPrecondition)

	// ErrReaderClosed is returned by Read after the reader was closed without
	// an error.
	ErrReaderClosed = errors.New("diskbuf: read on closed reader")
)

// SetupError reports a failure to create the backing file. A writer that
// hits one is destroyed with it, and every reader attached at the time
// fails with the same error.
type SetupError struct {
	// Cause is the error returned while creating the file
	Cause error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("diskbuf: creating backing file: %v", e.Cause)
}

func (e *SetupError) Unwrap() error {
	return e.Cause
}

// NewSetupError creates a SetupError
func NewSetupError(cause error) error {
	return &SetupError{Cause: cause}
}

// NewDiskError wraps an I/O error with the operation and path it happened on
func NewDiskError(err error, operation, path string) error {
	if path != "" {
		return fmt.Errorf("disk error during %s on %s: %w", operation, path, err)
	}
	return fmt.Errorf("disk error during %s: %w", operation, err)
}

// firstError returns the first non-nil error.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
