package core

import (
	"context"
	"sync"
)

// Registry indexes the cancellation handles of in-process task runners by
// task id. It is process-local and never authoritative for task status:
// after a restart it starts empty and previously running tasks are
// orphans (see Manager.reconcile).
type Registry struct {
	mu      sync.Mutex
	handles map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]context.CancelFunc)}
}

// Register stores the cancel handle for a runner. A second registration
// for the same id fails with ErrDuplicateTask, which is what enforces the
// one-runner-per-task invariant.
func (r *Registry) Register(id string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; ok {
		return ErrDuplicateTask
	}
	r.handles[id] = cancel
	return nil
}

// Cancel signals the runner for id to stop and removes its handle. It is
// idempotent: cancelling an absent id reports false and does nothing.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether a runner handle exists for id.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

// CancelAll stops every registered runner. Used during shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]context.CancelFunc)
	r.mu.Unlock()
	for _, cancel := range handles {
		cancel()
	}
}

// Len returns the number of active handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
