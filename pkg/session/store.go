package session

import "sync"

// Store abstracts the session registry so the tracker can be backed by
// process memory today and a shared external store later without touching
// the state machine.
type Store interface {
	Get(id string) (Session, bool)
	Set(s Session)
	Delete(id string)
	Range(fn func(s Session) bool)
	Len() int
}

// MemoryStore is a mutex-guarded in-process registry. Sessions are stored
// by value so readers never observe partial updates.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
	}
}

func (m *MemoryStore) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) Set(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) Range(fn func(s Session) bool) {
	m.mu.RLock()
	snapshot := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
