package session

import (
	"context"
	"fmt"
	"sync"
)

type Store interface {
	Load(ctx context.Context, clientID string) (State, bool, error)
	Save(ctx context.Context, clientID string, st State) error
	Delete(ctx context.Context, clientID string) error
}

type clientLock struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes state changes per client. The lock is held only for the
// read-modify-write of a single transition, never across collaborator calls.
type Manager struct {
	store Store
	mu    sync.Mutex
	locks map[string]*clientLock
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*clientLock),
	}
}

func (m *Manager) Get(ctx context.Context, clientID string) (State, error) {
	st, ok, err := m.store.Load(ctx, clientID)
	if err != nil {
		return State{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return New(), nil
	}
	return st, nil
}

// Update applies fn to the client's state and saves the result, also when fn
// returns an error: rejections are recorded in the state (State.Error).
func (m *Manager) Update(ctx context.Context, clientID string, fn func(*State) error) (State, error) {
	unlock := m.lock(clientID)
	defer unlock()

	st, err := m.Get(ctx, clientID)
	if err != nil {
		return State{}, err
	}
	fnErr := fn(&st)
	if err := m.store.Save(ctx, clientID, st); err != nil {
		return State{}, fmt.Errorf("save session: %w", err)
	}
	return st, fnErr
}

func (m *Manager) Delete(ctx context.Context, clientID string) error {
	unlock := m.lock(clientID)
	defer unlock()
	return m.store.Delete(ctx, clientID)
}

func (m *Manager) lock(clientID string) func() {
	m.mu.Lock()
	l, ok := m.locks[clientID]
	if !ok {
		l = &clientLock{}
		m.locks[clientID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, clientID)
		}
		m.mu.Unlock()
	}
}
