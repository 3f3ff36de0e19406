package memory

import (
	"sync"

	"trivia-service/internal/domain"
	"trivia-service/internal/game"
)

// SessionRegistry is an in-memory implementation of app.SessionRegistry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*game.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*game.Session),
	}
}

// Create registers the session. At most one live session per id.
func (r *SessionRegistry) Create(session *game.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID()]; ok {
		return domain.ErrGameExists
	}
	r.sessions[session.ID()] = session
	return nil
}

func (r *SessionRegistry) Get(id string) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return session, nil
}

// Remove drops the session. Removing an unknown id is a no-op.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
