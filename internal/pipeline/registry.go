package pipeline

import (
	"context"
	"sync"
)

// CancellationRegistry maps unit ids to the cancel handles of their
// in-flight jobs. It is the one structure mutated from concurrent call
// sites; every register and remove is atomic per id so a handle can never
// be orphaned or doubled.
type CancellationRegistry struct {
	mu      sync.Mutex
	handles map[int64]context.CancelFunc
}

func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{handles: make(map[int64]context.CancelFunc)}
}

// Register installs a cancel handle for a unit. It refuses when a handle
// already exists: at most one in-flight job per unit id.
func (r *CancellationRegistry) Register(id int64, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handles[id]; exists {
		return false
	}
	r.handles[id] = cancel
	return true
}

// Cancel invokes and removes the handle for a unit, if one is in flight.
func (r *CancellationRegistry) Cancel(id int64) bool {
	r.mu.Lock()
	cancel, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Remove drops the handle without invoking it. Called from the job's
// cleanup path on every outcome.
func (r *CancellationRegistry) Remove(id int64) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// InFlight reports whether a unit currently holds a handle.
func (r *CancellationRegistry) InFlight(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

// Len returns the number of in-flight handles.
func (r *CancellationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
