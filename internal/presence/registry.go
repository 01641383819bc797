package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the authoritative store of live sessions. The hub's
// loop is the only writer in production, but the registry locks
// anyway so HTTP handlers and tests can read it directly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register assigns a fresh id to the candidate, stores it, and
// returns the id. A client-supplied id on the candidate is ignored.
func (r *Registry) Register(candidate Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate.ID = uuid.NewString()
	candidate.LastActive = time.Now()
	r.sessions[candidate.ID] = &candidate
	return candidate.ID
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Update merges field/cursor changes and refreshes LastActive.
// A miss is a no-op: the session may have been reaped while the
// update was in flight, and that race must not surface as an error.
func (r *Registry) Update(id string, field string, cursor *int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	s.Field = field
	s.CursorPosition = cursor
	s.LastActive = time.Now()
	return *s, true
}

// Touch refreshes LastActive only (heartbeat path).
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.LastActive = time.Now()
	return true
}

// Remove deletes the session and returns it for the leave broadcast.
// Removing an already-removed id reports false, so a leave/timeout
// race resolves to exactly one broadcast.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// All returns a snapshot of every live session.
func (r *Registry) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// StaleSince returns the ids of sessions whose LastActive is older
// than the cutoff. Used by the reaper sweep.
func (r *Registry) StaleSince(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.LastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
