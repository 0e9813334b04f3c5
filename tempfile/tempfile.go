// Package tempfile creates the files that back disk buffers: it picks a
// suitable temporary directory and creates a new, exclusively owned file with
// a randomized name inside it.
package tempfile

import (
	"context"
	"fmt"
	"os"
)

// Create makes dir if needed and creates a new file in it whose name starts
// with prefix followed by a random string. The file is opened read-write with
// mode 0600 and is never an existing file: creation fails rather than reuse a
// path that is already taken.
func Create(dir, prefix string) (*os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return os.CreateTemp(dir, prefix+"*")
}

// DiskOpener returns an Opener creating files with Create in the directory
// chosen by GetTempDir(dir, preferDiskBacked).
func DiskOpener(dir, prefix string, preferDiskBacked bool) Opener {
	return func(ctx context.Context) (File, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := Create(GetTempDir(dir, preferDiskBacked), prefix)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}
