package workspace

import (
	"context"
	"strings"
	"sync"

	"agent-workspace/metrics"
)

// Manager lazily creates one Workspace per session id.
type Manager struct {
	base Config

	mu       sync.Mutex
	sessions map[string]*Workspace
}

// NewManager returns a manager that builds workspaces from base, with the
// session id filled in per call.
func NewManager(base Config) *Manager {
	return &Manager{
		base:     base,
		sessions: make(map[string]*Workspace),
	}
}

// Get returns the workspace for session, creating and rehydrating it on
// first use.
func (m *Manager) Get(ctx context.Context, session string) (*Workspace, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return nil, ErrSessionRequired
	}

	m.mu.Lock()
	w, ok := m.sessions[session]
	m.mu.Unlock()
	if ok {
		return w, nil
	}

	cfg := m.base
	cfg.Session = session
	created, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.sessions[session]; ok {
		return w, nil
	}
	m.sessions[session] = created
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return created, nil
}

// Lookup returns the held workspace for session without registering a new
// one. Unknown sessions are rehydrated into a throwaway workspace so reads
// still see persisted plans.
func (m *Manager) Lookup(ctx context.Context, session string) (*Workspace, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return nil, ErrSessionRequired
	}

	m.mu.Lock()
	w, ok := m.sessions[session]
	m.mu.Unlock()
	if ok {
		return w, nil
	}

	cfg := m.base
	cfg.Session = session
	return New(ctx, cfg)
}

// Len reports how many workspaces are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
