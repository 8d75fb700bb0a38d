package mandatechain

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotFound is returned by stores when no session exists for a key.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions between conversational turns. Implementations must
// isolate sessions from each other and from later mutation of the returned
// value.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// LoadOrCreate fetches the session or starts a fresh one at NO_INTENT.
func LoadOrCreate(ctx context.Context, store Store, sessionID string) (*Session, error) {
	s, err := store.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MemoryStore keeps sessions in-process. It copies on both load and save so
// callers never share a live *Session with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := s
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = *session
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
