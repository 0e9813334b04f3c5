package diskbuf_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanrat/diskbuf"
	"github.com/lanrat/diskbuf/exitcleanup"
	"github.com/lanrat/diskbuf/tempfile"
)

const testTimeout = 10 * time.Second

// newTestWriter returns a writer backed by a real file in a per-test
// directory, with its own exit registry.
func newTestWriter(t *testing.T) (*diskbuf.Writer, *exitcleanup.ProcessRegistry) {
	t.Helper()
	reg := exitcleanup.New()
	w := diskbuf.New(context.Background(), &diskbuf.Config{
		TempFilesDir: t.TempDir(),
		Registry:     reg,
	})
	t.Cleanup(func() { w.Destroy(context.Canceled) })
	waitReady(t, w)
	return w, reg
}

// newMockWriter returns a writer backed by an in-memory file.
func newMockWriter(t *testing.T) (*diskbuf.Writer, *tempfile.Mock) {
	t.Helper()
	m := tempfile.NewMock()
	w := diskbuf.New(context.Background(), &diskbuf.Config{
		Registry: exitcleanup.New(),
		Opener:   tempfile.MockOpener(m),
	})
	t.Cleanup(func() { w.Destroy(context.Canceled) })
	waitReady(t, w)
	return w, m
}

func waitReady(t *testing.T, w *diskbuf.Writer) {
	t.Helper()
	select {
	case <-w.Ready():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the backing file")
	}
}

// waitTeardown waits for w to be torn down and returns the teardown result.
func waitTeardown(t *testing.T, w *diskbuf.Writer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := w.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "timed out waiting for teardown")
	return err
}

func mustWrite(t *testing.T, w *diskbuf.Writer, s string) {
	t.Helper()
	n, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.Equal(t, len(s), n)
}

func mustReader(t *testing.T, w *diskbuf.Writer, opts ...diskbuf.ReaderOption) *diskbuf.Reader {
	t.Helper()
	r, err := w.NewReader(opts...)
	require.NoError(t, err)
	return r
}

// readResult is what a background read returned.
type readResult struct {
	n   int
	err error
}

// readAsync starts a single Read on r and returns a channel delivering its result.
func readAsync(r *diskbuf.Reader, p []byte) <-chan readResult {
	ch := make(chan readResult, 1)
	go func() {
		n, err := r.Read(p)
		ch <- readResult{n: n, err: err}
	}()
	return ch
}

// fakeRegistry records registrations without touching any files.
type fakeRegistry struct {
	mu           sync.Mutex
	next         exitcleanup.Handle
	live         map[exitcleanup.Handle]string
	unregistered int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{live: make(map[exitcleanup.Handle]string)}
}

func (f *fakeRegistry) Register(_ exitcleanup.Closer, path string) exitcleanup.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.live[f.next] = path
	return f.next
}

func (f *fakeRegistry) Unregister(h exitcleanup.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[h]; ok {
		f.unregistered++
	}
	delete(f.live, h)
}

func (f *fakeRegistry) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}
