package presence

import "sync"

// ScopeIndex answers "which sessions are watching this document"
// without scanning the registry. It must be updated in the same hub
// operation as every registry register/remove, or the two drift.
type ScopeIndex struct {
	mu     sync.RWMutex
	scopes map[Scope]map[string]struct{}
}

func NewScopeIndex() *ScopeIndex {
	return &ScopeIndex{scopes: make(map[Scope]map[string]struct{})}
}

func (x *ScopeIndex) Add(s Session) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.scopes[s.Scope] == nil {
		x.scopes[s.Scope] = make(map[string]struct{})
	}
	x.scopes[s.Scope][s.ID] = struct{}{}
}

func (x *ScopeIndex) Remove(s Session) {
	x.mu.Lock()
	defer x.mu.Unlock()

	members, ok := x.scopes[s.Scope]
	if !ok {
		return
	}
	delete(members, s.ID)
	if len(members) == 0 {
		delete(x.scopes, s.Scope)
	}
}

// SessionsIn returns the session ids registered under a scope.
func (x *ScopeIndex) SessionsIn(scope Scope) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	members := x.scopes[scope]
	if len(members) == 0 {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether a session id is indexed under a scope.
func (x *ScopeIndex) Contains(scope Scope, id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, ok := x.scopes[scope][id]
	return ok
}
