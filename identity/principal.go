// Package identity resolves transport credentials into a Principal and makes
// the resolved caller explicit on the request context. No ambient global
// session state exists; every downstream call receives the Principal.
package identity

import "github.com/google/uuid"

// Principal is the resolved caller identity for one request. It is
// constructed per request and never persisted.
type Principal struct {
	ID     uuid.UUID
	Roles  []string
	Tenant string
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal carries at least one of the given
// roles. An empty slice matches any principal.
func (p *Principal) HasAnyRole(roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}
