// Package authority decides whether an envelope may mutate replicated state.
package authority

import (
	"sync"

	"skirmish/server/internal/action"
)

// Scope is a replication scope. An empty Host means the scope has no host
// concept and every member is authoritative.
type Scope struct {
	ID   action.ScopeID
	Host action.PeerID
}

// Resolver maps scope ids onto scopes.
type Resolver interface {
	Resolve(id action.ScopeID) (Scope, bool)
}

// Scopes is the in-memory scope registry used by a session.
type Scopes struct {
	mu     sync.RWMutex
	scopes map[action.ScopeID]Scope
}

// NewScopes constructs a registry seeded with scopes.
func NewScopes(scopes ...Scope) *Scopes {
	s := &Scopes{scopes: make(map[action.ScopeID]Scope, len(scopes))}
	for _, scope := range scopes {
		s.scopes[scope.ID] = scope
	}
	return s
}

// Resolve implements Resolver.
func (s *Scopes) Resolve(id action.ScopeID) (Scope, bool) {
	if s == nil {
		return Scope{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.scopes[id]
	return scope, ok
}

// Put registers or replaces a scope.
func (s *Scopes) Put(scope Scope) {
	s.mu.Lock()
	s.scopes[scope.ID] = scope
	s.mu.Unlock()
}

// Remove forgets a scope.
func (s *Scopes) Remove(id action.ScopeID) {
	s.mu.Lock()
	delete(s.scopes, id)
	s.mu.Unlock()
}

// Validator answers authority questions for the local peer.
type Validator struct {
	resolver Resolver
	local    action.PeerID
}

// NewValidator constructs a validator for the local peer.
func NewValidator(resolver Resolver, local action.PeerID) *Validator {
	return &Validator{resolver: resolver, local: local}
}

// IsAuthoritative reports whether env may mutate replicated state. Local
// envelopes are always authoritative. Remote envelopes are authoritative when
// their scope is known and either has no host or was sent by the host.
func (v *Validator) IsAuthoritative(env action.Envelope) bool {
	switch origin := env.Origin.(type) {
	case action.Local:
		return true
	case action.Remote:
		if v == nil || v.resolver == nil {
			return false
		}
		scope, ok := v.resolver.Resolve(origin.Scope)
		if !ok {
			return false
		}
		if scope.Host == "" {
			return true
		}
		return env.Peer == scope.Host
	default:
		return false
	}
}

// IsAuthoritativeOrOwner additionally accepts transitions a user reports
// about itself.
func (v *Validator) IsAuthoritativeOrOwner(env action.Envelope, subject action.UserID) bool {
	if v.IsAuthoritative(env) {
		return true
	}
	if _, ok := env.Origin.(action.Remote); !ok {
		return false
	}
	return subject != "" && env.User == subject
}

// IsLocalHost reports whether this peer applies authoritative logic in
// scope. Unknown scopes are never hosted locally.
func (v *Validator) IsLocalHost(scope action.ScopeID) bool {
	if v == nil || v.resolver == nil {
		return false
	}
	resolved, ok := v.resolver.Resolve(scope)
	if !ok {
		return false
	}
	return resolved.Host == "" || resolved.Host == v.local
}

// LocalPeer returns the peer the validator answers for.
func (v *Validator) LocalPeer() action.PeerID {
	return v.local
}
