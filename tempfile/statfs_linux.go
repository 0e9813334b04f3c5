//go:build linux

package tempfile

import "golang.org/x/sys/unix"

// isMemoryBacked reports whether dir is on tmpfs or ramfs. Directories that
// cannot be inspected (for example because they do not exist yet) are
// assumed to be disk-backed.
func isMemoryBacked(dir string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false
	}
	switch int64(st.Type) {
	case unix.TMPFS_MAGIC, unix.RAMFS_MAGIC:
		return true
	}
	return false
}
