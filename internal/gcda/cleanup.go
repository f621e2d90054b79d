package gcda

import (
	"errors"
	"os"
	"sync"
)

// CleanupRegistry is the process-wide cleanup list: the only shared
// mutable state the dispatch engine touches. It is injected rather than
// ambient so each test can pass its own registry and inspect it (Len)
// instead of sharing process-wide state.
type CleanupRegistry struct {
	mu    sync.Mutex
	paths []string
}

// NewCleanupRegistry returns an empty registry.
func NewCleanupRegistry() *CleanupRegistry {
	return &CleanupRegistry{}
}

// Register enqueues path for later removal. Appends are serialized by
// the registry's own mutex, since concurrent dispatches may register
// paths at the same time.
func (r *CleanupRegistry) Register(path string) error {
	if path == "" {
		return errors.New("gcda: cannot register empty cleanup path")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

// Drain unlinks every registered path and empties the registry, returning
// the first error encountered (if any) after attempting all of them.
func (r *CleanupRegistry) Drain() error {
	r.mu.Lock()
	paths := r.paths
	r.paths = nil
	r.mu.Unlock()

	var firstErr error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports how many paths are currently registered, for tests.
func (r *CleanupRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}
