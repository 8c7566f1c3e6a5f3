package chi

import (
	"sync"

	"github.com/google/uuid"

	"github.com/harborview-labs/insight/internal/usecase/chat"
)

// SessionFactory builds a fresh pipeline instance for one session. Each
// session owns its own memory manager, so sessions never share mutable
// state.
type SessionFactory func(sessionID string) *chat.Service

// SessionRegistry maps session IDs to their pipeline instances. Safe for
// concurrent use; each returned *chat.Service is still single-session.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*chat.Service
	factory  SessionFactory
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*chat.Service),
		factory:  factory,
	}
}

// Acquire returns the session's pipeline, creating it on first use. An
// empty id starts a new session with a generated id.
func (r *SessionRegistry) Acquire(id string) (string, *chat.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if svc, ok := r.sessions[id]; ok {
		return id, svc
	}

	svc := r.factory(id)
	r.sessions[id] = svc
	return id, svc
}

// Release drops a session's pipeline and its memory.
func (r *SessionRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
