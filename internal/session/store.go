// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyRotated is returned by [RefreshTokenRepository.Rotate] when the
// old record was not active at the time of the conditional update — another
// request won the race, or the record was already revoked.
//
// This sentinel never leaves the session package: the service translates it
// into a reuse signal.
var ErrAlreadyRotated = errors.New("session: refresh record already rotated")

// # Principal Data Access

// PrincipalRepository defines the data access contract for principals.
type PrincipalRepository interface {

	/*
		Create persists a brand-new principal to the storage.

		Parameters:
		  - ctx: context.Context
		  - principal: *Principal

		Returns:
		  - error: Persistence failures (duplicate email surfaces as DUPLICATE_IDENTITY)
	*/
	Create(ctx context.Context, principal *Principal) error

	/*
		FindByID returns the principal with the given ID.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - *Principal: Hydrated entity
		  - error: Not found or retrieval failures
	*/
	FindByID(ctx context.Context, id string) (*Principal, error)

	/*
		FindByEmail returns the principal with the given email.

		Parameters:
		  - ctx: context.Context
		  - email: string

		Returns:
		  - *Principal: Hydrated entity
		  - error: Not found or retrieval failures
	*/
	FindByEmail(ctx context.Context, email string) (*Principal, error)

	/*
		UpdateCredentialHash replaces only the principal's credential hash.

		Parameters:
		  - ctx: context.Context
		  - principalID: string
		  - newHash: string
		  - now: time.Time

		Returns:
		  - error: Persistence failures
	*/
	UpdateCredentialHash(ctx context.Context, principalID, newHash string, now time.Time) error

	/*
		TouchLastLogin stamps the principal's last successful login.

		Parameters:
		  - ctx: context.Context
		  - principalID: string
		  - now: time.Time

		Returns:
		  - error: Persistence failures
	*/
	TouchLastLogin(ctx context.Context, principalID string, now time.Time) error

	/*
		Deactivate soft-closes the account without removing the row.

		Principals are never hard-deleted while refresh records reference them.

		Parameters:
		  - ctx: context.Context
		  - principalID: string
		  - now: time.Time

		Returns:
		  - error: Persistence failures
	*/
	Deactivate(ctx context.Context, principalID string, now time.Time) error
}

// # Refresh Token Data Access

// RefreshTokenRepository defines the data access contract for refresh records.
//
// All expiry decisions take an explicit instant so behavior is deterministic
// under test; implementations must not consult the wall clock themselves.
type RefreshTokenRepository interface {

	/*
		Store inserts a new active refresh record.

		Parameters:
		  - ctx: context.Context
		  - record: *RefreshTokenRecord

		Returns:
		  - error: Persistence failures (duplicate hash is a constraint violation)
	*/
	Store(ctx context.Context, record *RefreshTokenRecord) error

	/*
		LookupActive returns the record for tokenHash only if it passes the
		active invariant at 'now'. Expired-but-unrevoked records are NotFound
		for lookup purposes but remain historically queryable via DetectReuse.

		Parameters:
		  - ctx: context.Context
		  - tokenHash: string
		  - now: time.Time

		Returns:
		  - *RefreshTokenRecord: Active record
		  - error: dberr.ErrNotFound when no active record matches
	*/
	LookupActive(ctx context.Context, tokenHash string, now time.Time) (*RefreshTokenRecord, error)

	/*
		Rotate atomically revokes the record for oldTokenHash (only if still
		active at 'now') and inserts the successor with ReplacedByHash set.

		This is the single conditional operation that prevents double-spend:
		under concurrent identical refresh requests, exactly one caller's
		conditional update succeeds; every other caller observes
		[ErrAlreadyRotated].

		Parameters:
		  - ctx: context.Context
		  - oldTokenHash: string
		  - successor: *RefreshTokenRecord (ID, OwnerID, TokenHash, IssuedAt, ExpiresAt populated)
		  - now: time.Time

		Returns:
		  - *RefreshTokenRecord: The inserted successor
		  - error: ErrAlreadyRotated when the old record was not active, or persistence failures
	*/
	Rotate(ctx context.Context, oldTokenHash string, successor *RefreshTokenRecord, now time.Time) (*RefreshTokenRecord, error)

	/*
		RevokeOne revokes the single active record matching tokenHash.

		Revoking an already-terminal or unknown hash is not an error
		(idempotent, to avoid leaking validity information).

		Parameters:
		  - ctx: context.Context
		  - tokenHash: string
		  - reason: RevocationReason
		  - now: time.Time

		Returns:
		  - error: Persistence failures only
	*/
	RevokeOne(ctx context.Context, tokenHash string, reason RevocationReason, now time.Time) error

	/*
		RevokeAll revokes every currently-active record owned by a principal.

		Parameters:
		  - ctx: context.Context
		  - ownerID: string
		  - reason: RevocationReason
		  - now: time.Time

		Returns:
		  - int64: Number of records revoked
		  - error: Persistence failures
	*/
	RevokeAll(ctx context.Context, ownerID string, reason RevocationReason, now time.Time) (int64, error)

	/*
		DetectReuse returns the record for tokenHash regardless of state, so
		the caller can decide whether a failed LookupActive was theft (record
		revoked) or benign expiry (record merely expired).

		Parameters:
		  - ctx: context.Context
		  - tokenHash: string

		Returns:
		  - *RefreshTokenRecord: Historical record
		  - error: dberr.ErrNotFound when the hash was never issued
	*/
	DetectReuse(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error)

	/*
		PurgeExpired deletes terminal records whose expiry predates 'before'.

		Advisory housekeeping, not correctness-critical.

		Parameters:
		  - ctx: context.Context
		  - before: time.Time

		Returns:
		  - int64: Number of records deleted
		  - error: Persistence failures
	*/
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// # Security Bookkeeping

// ReuseMonitor records reuse incidents for operational alerting.
//
// Recording is best-effort: a monitor failure must never block or change the
// authentication decision itself.
type ReuseMonitor interface {

	/*
		RecordIncident notes that an already-rotated secret was presented again.

		Parameters:
		  - ctx: context.Context
		  - ownerID: string
		  - tokenHash: string

		Returns:
		  - error: Monitor connectivity failures (logged, never surfaced)
	*/
	RecordIncident(ctx context.Context, ownerID, tokenHash string) error
}
