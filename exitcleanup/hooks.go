package exitcleanup

import (
	"os"
	"slices"
	"sync"
)

// hooks holds the registries that currently have live registrations.
var (
	hooksMu sync.Mutex
	hooks   []*ProcessRegistry
)

func addHook(r *ProcessRegistry) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = append(hooks, r)
}

func removeHook(r *ProcessRegistry) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = slices.DeleteFunc(hooks, func(h *ProcessRegistry) bool { return h == r })
}

// RunHooks synchronously runs every installed exit hook. Each registry hook
// uninstalls itself as it runs, so calling RunHooks again only handles files
// registered since.
func RunHooks() {
	hooksMu.Lock()
	rs := slices.Clone(hooks)
	hooksMu.Unlock()

	for _, r := range rs {
		r.Run()
	}
}

// Exit runs the exit hooks and terminates the process with the given code.
func Exit(code int) {
	RunHooks()
	os.Exit(code)
}
