// Package exitcleanup tracks temporary files that must be closed and removed
// when the process exits, even if their owners never got the chance to clean
// up after themselves.
//
// Go has no atexit facility, so the registry is drained by [RunHooks] or [Exit].
// Programs that want the guarantee call one of them on their way out, and are
// responsible for turning SIGINT/SIGTERM into an orderly exit; this package
// never installs signal handlers.
package exitcleanup

import (
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/containerd/log"
)

// Closer is the part of a file the registry needs to release it.
type Closer interface {
	Close() error
}

// Handle identifies a single registration.
type Handle uint64

// Registry records files that are still open so they can be released at exit.
type Registry interface {
	// Register records f (located at path) for cleanup and returns a handle
	// that can later be passed to Unregister.
	Register(f Closer, path string) Handle

	// Unregister forgets a registration. Unknown handles are ignored.
	Unregister(h Handle)
}

var _ Registry = (*ProcessRegistry)(nil)

// ProcessRegistry is the standard Registry. While it holds at least one
// registration, its Run method is installed as a process exit hook, exactly
// once. The hook is uninstalled when the last registration goes away, so an
// empty registry is not kept alive by the hook list.
type ProcessRegistry struct {
	mu     sync.Mutex
	next   Handle
	thunks map[Handle]func()
	hooked bool
}

var (
	defaultOnce     sync.Once
	defaultRegistry *ProcessRegistry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *ProcessRegistry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// New returns an empty registry. Its exit hook is installed by the first Register.
func New() *ProcessRegistry {
	return &ProcessRegistry{thunks: make(map[Handle]func())}
}

// Register records f for cleanup at exit.
func (r *ProcessRegistry) Register(f Closer, path string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hooked {
		addHook(r)
		r.hooked = true
	}
	r.next++
	h := r.next
	r.thunks[h] = cleanupFunc(f, path)
	return h
}

// cleanupFunc captures only the file and its path, so the owner of the file
// can be collected as soon as it unregisters.
func cleanupFunc(f Closer, path string) func() {
	return func() {
		_ = f.Close()
		if err := os.Remove(path); err == nil {
			log.L.WithField("path", path).Debug("exit cleanup removed temp file")
		}
	}
}

// Unregister forgets h.
func (r *ProcessRegistry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.thunks, h)
	if len(r.thunks) == 0 {
		r.unhookLocked()
	}
}

func (r *ProcessRegistry) unhookLocked() {
	if r.hooked {
		removeHook(r)
		r.hooked = false
	}
}

// Len returns the number of live registrations.
func (r *ProcessRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.thunks)
}

// Run closes and removes every registered file, in registration order.
// Failures are ignored: a file may already have been closed or removed by its
// owner. Registrations are dropped as they run, so calling Run again is a no-op.
func (r *ProcessRegistry) Run() {
	r.mu.Lock()
	thunks := r.thunks
	r.thunks = make(map[Handle]func())
	r.unhookLocked()
	r.mu.Unlock()

	for _, h := range slices.Sorted(maps.Keys(thunks)) {
		thunks[h]()
	}
}
