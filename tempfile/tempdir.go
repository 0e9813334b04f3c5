package tempfile

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// tempDirName is the subdirectory used when falling back to the home or
// working directory.
const tempDirName = ".diskbuf-tmp"

var (
	// Pre-computed directory choices
	diskPreferredDir string
	memoryAllowedDir string
	dirDiscoveryOnce sync.Once

	cachedHomeDir string
	cachedWorkDir string
	cachedOSTemp  string
)

// GetTempDir returns the directory new buffer files should be created in.
// A non-empty, usable dir is returned as is. Otherwise the result is a
// directory chosen once per process; with preferDiskBacked set, directories
// that live on a memory filesystem (tmpfs) are passed over when an
// alternative exists, since buffers can grow as large as their input.
func GetTempDir(dir string, preferDiskBacked bool) string {
	if dir != "" && isDirectoryUsable(dir) {
		return dir
	}

	dirDiscoveryOnce.Do(discoverDirectories)

	if preferDiskBacked {
		return diskPreferredDir
	}
	return memoryAllowedDir
}

func discoverDirectories() {
	cachedOSTemp = os.TempDir()
	if homeDir, err := os.UserHomeDir(); err == nil {
		cachedHomeDir = homeDir
	}
	if workDir, err := os.Getwd(); err == nil {
		cachedWorkDir = workDir
	}

	diskPreferredDir = findBestDirectory(true)
	memoryAllowedDir = findBestDirectory(false)
}

// findBestDirectory walks the candidates in priority order. When
// preferDiskBacked is set, a memory-backed candidate is remembered but only
// used if nothing better turns up.
func findBestDirectory(preferDiskBacked bool) string {
	var memoryBacked string
	for _, candidate := range buildCandidateList(preferDiskBacked) {
		if !isDirectoryUsable(candidate) {
			continue
		}
		if preferDiskBacked && isMemoryBacked(candidate) {
			if memoryBacked == "" {
				memoryBacked = candidate
			}
			continue
		}
		return candidate
	}
	if memoryBacked != "" {
		return memoryBacked
	}
	return cachedOSTemp
}

func buildCandidateList(preferDiskBacked bool) []string {
	var candidates []string
	if preferDiskBacked {
		candidates = append(candidates, buildDiskPreferredCandidates()...)
	}
	candidates = append(candidates, cachedOSTemp)
	return append(candidates, buildAdditionalFallbacks()...)
}

// buildDiskPreferredCandidates returns directories that are traditionally
// disk-backed. On Unix that is /var/tmp, unlike /tmp which is often tmpfs.
func buildDiskPreferredCandidates() []string {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris":
		return []string{"/var/tmp"}
	case "darwin":
		return []string{"/var/tmp", "/private/var/tmp"}
	default:
		return nil
	}
}

// buildAdditionalFallbacks returns subdirectories of the home and working
// directories, for systems where the OS temp directory is unusable.
func buildAdditionalFallbacks() []string {
	var candidates []string
	if cachedHomeDir != "" {
		candidates = append(candidates, filepath.Join(cachedHomeDir, tempDirName))
	}
	if cachedWorkDir != "" {
		candidates = append(candidates, filepath.Join(cachedWorkDir, tempDirName))
	}
	return candidates
}

// isDirectoryUsable reports whether dir is an existing directory or does not
// exist yet and may be created. Writability is checked when the file is made.
func isDirectoryUsable(dir string) bool {
	stat, err := os.Stat(dir)
	if err != nil {
		return os.IsNotExist(err)
	}
	return stat.IsDir()
}
