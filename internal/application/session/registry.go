package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// ManagerFactory builds a manager bound to one tenant.
type ManagerFactory func(tenant string) *Manager

// Registry tracks the active manager per tenant session id. Exactly one
// session is active per id; opening a new one replaces and closes the old.
type Registry struct {
	factory ManagerFactory

	mu       sync.Mutex
	sessions map[string]*Manager
}

func NewRegistry(f ManagerFactory) *Registry {
	return &Registry{factory: f, sessions: make(map[string]*Manager)}
}

// Open creates a new session manager for the tenant and returns its id.
func (r *Registry) Open(tenant string) (string, *Manager) {
	id := uuid.New().String()
	m := r.factory(tenant)
	r.mu.Lock()
	r.sessions[tenant+"/"+id] = m
	r.mu.Unlock()
	return id, m
}

// Get looks up an active session.
func (r *Registry) Get(tenant, id string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[tenant+"/"+id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

// Drop closes and forgets a session, releasing any held device.
func (r *Registry) Drop(tenant, id string) {
	r.mu.Lock()
	m := r.sessions[tenant+"/"+id]
	delete(r.sessions, tenant+"/"+id)
	r.mu.Unlock()
	if m != nil {
		m.Close()
	}
}
