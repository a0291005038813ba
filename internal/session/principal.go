// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

/*
Package session implements the credential-to-session token lifecycle.

It defines the core domain entities (Principal, RefreshTokenRecord) and the
logic for registration, login, refresh-token rotation, reuse detection, and
revocation.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies and encapsulate all business rules related to the
session lifecycle. Persistence is abstracted behind the repository interfaces
in store.go; time is abstracted behind an injected clock.
*/
package session

import (
	"time"

	"github.com/khoiminh/torii/internal/platform/sec"
)

// # Domain Entities

// Principal represents a registered identity.
type Principal struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name"`
	CredentialHash string     `json:"-"` // Explicitly omitted from JSON for security.
	Role           sec.Role   `json:"role"`
	IsActive       bool       `json:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RevocationReason classifies why a refresh record left the active state.
//
// The set is closed; the store persists these values verbatim.
type RevocationReason string

const (
	// ReasonRotated marks a record replaced by its successor during refresh.
	ReasonRotated RevocationReason = "rotated"

	// ReasonLogout marks a record revoked by an explicit logout.
	ReasonLogout RevocationReason = "logout"

	// ReasonPasswordChanged marks records revoked by a credential change.
	ReasonPasswordChanged RevocationReason = "password_changed"

	// ReasonSuspectedTheft marks records revoked because an already-rotated
	// secret was presented again (replay).
	ReasonSuspectedTheft RevocationReason = "suspected_theft"

	// ReasonAccountClosed marks records revoked by account deactivation.
	ReasonAccountClosed RevocationReason = "account_closed"
)

// RefreshTokenRecord is one row per issued refresh secret.
//
// The plaintext secret is never persisted; TokenHash is the deterministic
// hash used as the unique lookup key. A record transitions exactly once from
// active to terminal (rotated or revoked) and is never reactivated.
type RefreshTokenRecord struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	TokenHash      string            `json:"-"` // Hash of the refresh secret. Omitted for security.
	IssuedAt       time.Time         `json:"issued_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	RevokedAt      *time.Time        `json:"revoked_at,omitempty"`
	RevokedReason  *RevocationReason `json:"revoked_reason,omitempty"`
	ReplacedByHash *string           `json:"-"` // Successor's hash; omitted for security.
}

// ActiveAt reports whether the record passes the active invariant at the
// given instant: not revoked and not expired.
func (r *RefreshTokenRecord) ActiveAt(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Revoked reports whether the record was explicitly revoked (as opposed to
// merely expiring). Reuse detection hinges on this distinction.
func (r *RefreshTokenRecord) Revoked() bool {
	return r.RevokedAt != nil
}
