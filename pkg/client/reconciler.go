package client

import (
	"sync"

	"github.com/marketpulse/presence-backend/internal/types"
)

// Reconciler owns the local mirror of "who else is here". It keeps
// every presence the server reports and derives the same-page view
// by filtering out the local user.
type Reconciler struct {
	mu        sync.RWMutex
	userID    string
	selfID    string
	presences []types.Presence
}

func NewReconciler(userID string) *Reconciler {
	return &Reconciler{userID: userID}
}

// Apply merges one inbound envelope into local state.
func (r *Reconciler) Apply(env types.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Type {
	case types.TypeSync:
		// Wholesale replace. Our server-assigned id comes from the
		// direct presence echo; the roster scan is only a fallback,
		// since with two tabs of one user the first userId match in
		// the roster may be the other tab's session.
		r.presences = append([]types.Presence(nil), env.Presences...)
		if env.Presence != nil && env.Presence.UserID == r.userID {
			r.selfID = env.Presence.ID
			return
		}
		for _, p := range env.Presences {
			if p.UserID == r.userID {
				r.selfID = p.ID
				break
			}
		}

	case types.TypeJoin:
		if env.Presence == nil {
			return
		}
		// Upsert: never two entries for one session id.
		for i, p := range r.presences {
			if p.ID == env.Presence.ID {
				r.presences[i] = *env.Presence
				return
			}
		}
		r.presences = append(r.presences, *env.Presence)

	case types.TypeUpdate:
		if env.Presence == nil {
			return
		}
		// No-op when the session isn't known locally.
		for i, p := range r.presences {
			if p.ID == env.Presence.ID {
				r.presences[i] = *env.Presence
				return
			}
		}

	case types.TypeLeave:
		if env.Presence == nil {
			return
		}
		for i, p := range r.presences {
			if p.ID == env.Presence.ID {
				r.presences = append(r.presences[:i], r.presences[i+1:]...)
				return
			}
		}
	}
}

// Others returns everyone except the local user.
func (r *Reconciler) Others() []types.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Presence, 0, len(r.presences))
	for _, p := range r.presences {
		if p.UserID == r.userID || (r.selfID != "" && p.ID == r.selfID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SelfSessionID returns the id the server assigned to this client,
// or "" before the first sync (and after a disconnect).
func (r *Reconciler) SelfSessionID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfID
}

// Reset clears state on disconnect: a reconnect gets a new session
// id, so the cached one must not leak into the next connection.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfID = ""
	r.presences = nil
}
