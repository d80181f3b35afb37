package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrRegistryClosed signals engine creation after registry teardown.
var ErrRegistryClosed = errors.New("session: registry closed")

// ManagerFactory builds a session engine for one session ID. The factory
// decides the channels backing the credential store and may wire the
// engine's sign-out hook back to the registry.
type ManagerFactory func(sid string) (*Manager, error)

// Registry keeps one live session engine per authenticated client so
// timers keep counting between requests. Closing the registry cancels
// every outstanding timer pair.
type Registry struct {
	factory ManagerFactory
	logger  *slog.Logger

	mu       sync.Mutex
	managers map[string]*Manager
	closed   bool
}

// NewRegistry constructs an empty registry.
func NewRegistry(factory ManagerFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{factory: factory, logger: logger, managers: make(map[string]*Manager)}
}

// Lookup returns the live engine for a session ID, if any.
func (r *Registry) Lookup(sid string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[sid]
	return m, ok
}

// Create builds and caches a fresh engine for a new session ID.
func (r *Registry) Create(sid string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if m, ok := r.managers[sid]; ok {
		return m, nil
	}
	m, err := r.factory(sid)
	if err != nil {
		return nil, err
	}
	r.managers[sid] = m
	return m, nil
}

// Attach returns the live engine for a session ID, restoring a persisted
// session when no engine is cached. When nothing can be restored the
// engine is discarded and nil is returned: the caller stays anonymous.
func (r *Registry) Attach(ctx context.Context, sid string) (*Manager, error) {
	if m, ok := r.Lookup(sid); ok {
		return m, nil
	}
	m, err := r.Create(sid)
	if err != nil {
		return nil, err
	}
	if err := m.Restore(ctx); err != nil {
		r.Remove(sid)
		return nil, err
	}
	if !m.IsAuthenticated() {
		r.Remove(sid)
		return nil, nil
	}
	return m, nil
}

// Remove evicts and closes the engine for a session ID. Safe to call for
// unknown IDs.
func (r *Registry) Remove(sid string) {
	r.mu.Lock()
	m, ok := r.managers[sid]
	delete(r.managers, sid)
	r.mu.Unlock()
	if ok {
		m.Close()
	}
}

// Len reports the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Close tears down every engine. Further Creates fail.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	managers := r.managers
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()
	for _, m := range managers {
		m.Close()
	}
}
