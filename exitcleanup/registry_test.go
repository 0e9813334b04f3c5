package exitcleanup

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingCloser) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func tempPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buffer")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	return path
}

func TestRunClosesAndRemoves(t *testing.T) {
	r := New()
	path := tempPath(t)
	c := &countingCloser{}

	r.Register(c, path)
	assert.Equal(t, 1, r.Len())

	r.Run()

	assert.Equal(t, 1, c.Calls())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to be removed", path)
	assert.Equal(t, 0, r.Len())
}

func TestRunIsIdempotent(t *testing.T) {
	r := New()
	c := &countingCloser{}
	r.Register(c, tempPath(t))

	r.Run()
	r.Run()

	assert.Equal(t, 1, c.Calls())
}

func TestRunIgnoresFailures(t *testing.T) {
	r := New()
	failing := &countingCloser{err: os.ErrClosed}
	missing := filepath.Join(t.TempDir(), "already-gone")
	r.Register(failing, missing)

	path := tempPath(t)
	ok := &countingCloser{}
	r.Register(ok, path)

	r.Run()

	assert.Equal(t, 1, failing.Calls())
	assert.Equal(t, 1, ok.Calls())
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUnregister(t *testing.T) {
	r := New()
	path := tempPath(t)
	c := &countingCloser{}

	h := r.Register(c, path)
	r.Unregister(h)
	r.Unregister(h)
	r.Unregister(Handle(999))
	r.Run()

	assert.Equal(t, 0, c.Calls())
	_, err := os.Stat(path)
	assert.NoError(t, err, "unregistered file should be left alone")
}

func TestHandlesAreUnique(t *testing.T) {
	r := New()
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		h := r.Register(&countingCloser{}, "")
		require.False(t, seen[h], "duplicate handle %d", h)
		seen[h] = true
	}
	assert.Equal(t, 100, r.Len())
}

func installedHooks(r *ProcessRegistry) int {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	n := 0
	for _, h := range hooks {
		if h == r {
			n++
		}
	}
	return n
}

func TestHookInstalledOnce(t *testing.T) {
	r := New()
	assert.Equal(t, 0, installedHooks(r), "hook must not be installed before first Register")

	a := r.Register(&countingCloser{}, "")
	b := r.Register(&countingCloser{}, "")
	assert.Equal(t, 1, installedHooks(r))

	r.Unregister(a)
	assert.Equal(t, 1, installedHooks(r))
	r.Unregister(b)
	assert.Equal(t, 0, installedHooks(r), "empty registry must uninstall its hook")

	r.Register(&countingCloser{}, "")
	assert.Equal(t, 1, installedHooks(r))
	r.Run()
	assert.Equal(t, 0, installedHooks(r), "Run must uninstall the hook")
}

func TestRunHooksDrainsRegistries(t *testing.T) {
	r := New()
	path := tempPath(t)
	c := &countingCloser{}
	r.Register(c, path)

	RunHooks()

	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, 0, r.Len())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestConcurrentRegister(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := r.Register(&countingCloser{}, "")
			if h%2 == 0 {
				r.Unregister(h)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, r.Len())
}
