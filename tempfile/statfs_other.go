//go:build !linux

package tempfile

func isMemoryBacked(string) bool {
	return false
}
