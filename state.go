package diskbuf

import "fmt"

// State is the lifecycle state of a Writer.
//
// Valid progressions:
//   - Opening -> Open (file created) or Destroying (setup failed)
//   - Open -> Finished (Close) -> ReleasePending (Release with readers attached)
//   - Open or Finished -> ReleasePending
//   - ReleasePending -> Destroying, exactly when the last reader detaches
//   - Any -> Destroying (Destroy with an error, or with no readers attached)
//   - Destroying -> Destroyed (file closed and removed)
type State int32

const (
	// StateOpening means the backing file is still being created.
	StateOpening State = iota

	// StateOpen accepts writes and new readers.
	StateOpen

	// StateFinished means Close was called; readers see end of data once
	// they catch up.
	StateFinished

	// StateReleasePending means destruction was requested and waits for the
	// attached readers to detach. No new readers may attach.
	StateReleasePending

	// StateDestroying means the file is being closed and removed.
	StateDestroying

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFinished:
		return "finished"
	case StateReleasePending:
		return "release_pending"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}
