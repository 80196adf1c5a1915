package shutdown

import (
	"context"
	"sort"
	"sync"
)

// registryEntry holds a registered cleanup function with metadata.
type registryEntry struct {
	name     string
	fn       Func
	priority int // lower = earlier execution
}

// Registry maintains an ordered collection of cleanup functions.
//
// Typical priority ranges:
//   - 0-9: flush logs and metrics
//   - 10-19: close client connections
//   - 20-29: stop background workers
//   - 30-39: close databases and files
//   - 40+: final cleanup (temp files, locks)
type Registry struct {
	mu      sync.Mutex
	entries []registryEntry
	closed  bool
}

// NewRegistry creates a Registry ready to accept registrations.
func NewRegistry() *Registry {
	return &Registry{
		entries: make([]registryEntry, 0),
	}
}

// Register adds a cleanup function. Lower priority values execute earlier.
// Registration after Shutdown has run is a no-op.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.entries = append(r.entries, registryEntry{
		name:     name,
		fn:       fn,
		priority: priority,
	})
}

// Shutdown executes all registered cleanup functions in priority order.
// All functions run even if some fail; their errors are collected and
// returned. After Shutdown completes, the registry is closed.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)
	r.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	var errs []error
	for _, entry := range sorted {
		if err := entry.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Names returns the registered names in priority order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered cleanup functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed reports whether Shutdown has been called.
func (r *Registry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
