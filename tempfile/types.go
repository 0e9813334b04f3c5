package tempfile

import (
	"context"
	"io"
	"os"
)

// File is the positional I/O a disk buffer needs from its backing file.
// Appends and reads address explicit offsets, so a single descriptor can be
// shared by one writer and any number of readers without seeking.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Name returns the path the file was created at.
	Name() string
}

var _ File = (*os.File)(nil)

// Opener creates a new backing file.
type Opener func(ctx context.Context) (File, error)
