// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package sec

// # Roles

// Role represents the authorization level granted to a principal.
//
// The set is closed: persistence and token claims only ever carry one of the
// constants below.
type Role string

const (
	// Unrestricted system access
	RoleAdmin Role = "admin"

	// Default role for standard registered principals
	RoleMember Role = "member"
)

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// In reports whether the role is a member of the allowed set.
//
// Authorization is a plain membership check: endpoints declare the roles they
// accept rather than relying on an implicit hierarchy.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
