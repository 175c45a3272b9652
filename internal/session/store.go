package session

import (
	"context"
	"sync"
)

// MemoryStore keeps workspaces in process memory. Suitable for a single
// instance; use RedisStore when several instances share clients.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]State),
	}
}

func (m *MemoryStore) Load(_ context.Context, clientID string) (State, bool, error) {
	m.mu.RLock()
	st, ok := m.sessions[clientID]
	m.mu.RUnlock()
	if !ok {
		return State{}, false, nil
	}
	return st.Clone(), true, nil
}

func (m *MemoryStore) Save(_ context.Context, clientID string, st State) error {
	m.mu.Lock()
	m.sessions[clientID] = st.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	delete(m.sessions, clientID)
	m.mu.Unlock()
	return nil
}
