package diskbuf

import (
	"fmt"
	"os"

	"github.com/lanrat/diskbuf/exitcleanup"
	"github.com/lanrat/diskbuf/tempfile"
)

// Config holds configuration settings for a Writer
type Config struct {
	TempFilesDir     string               // empty for an automatically chosen temp directory
	FilenamePrefix   string               // filename prefix for files put in the temp directory
	PreferDiskBacked bool                 // pass over tmpfs (e.g. /var/tmp over /tmp) when choosing the temp directory
	Registry         exitcleanup.Registry // tracks open files for cleanup at process exit
	Opener           tempfile.Opener      // creates the backing file; nil uses the temp directory
}

// DefaultConfig returns the configuration used if none is provided
func DefaultConfig() *Config {
	return &Config{
		TempFilesDir:     "",
		FilenamePrefix:   fmt.Sprintf("diskbuf_%d_", os.Getpid()),
		PreferDiskBacked: false,
		Registry:         exitcleanup.Default(),
	}
}

// mergeConfig returns a copy of c with any unset values replaced by the defaults
func mergeConfig(c *Config) *Config {
	d := DefaultConfig()
	if c == nil {
		c = d
	}
	merged := *c
	if merged.FilenamePrefix == "" {
		merged.FilenamePrefix = d.FilenamePrefix
	}
	if merged.Registry == nil {
		merged.Registry = d.Registry
	}
	if merged.Opener == nil {
		merged.Opener = tempfile.DiskOpener(merged.TempFilesDir, merged.FilenamePrefix, merged.PreferDiskBacked)
	}
	return &merged
}
