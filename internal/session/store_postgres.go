// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

// PostgreSQL implementations of the session repositories.
//
// # Error Mapping
//
// Storage-specific errors (pgx.ErrNoRows, SQLSTATE codes, deadline blows) are
// mapped through [dberr.Wrap] so the domain only ever sees the closed apperr
// taxonomy — except [ErrAlreadyRotated], which is the rotation race signal.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoiminh/torii/internal/platform/dberr"
)

// # Principal Repository

// PostgresPrincipalRepository implements PrincipalRepository using pgx.
type PostgresPrincipalRepository struct {
	pool *pgxpool.Pool
}

// NewPrincipalRepository creates a new PostgreSQL implementation of PrincipalRepository.
func NewPrincipalRepository(pool *pgxpool.Pool) *PostgresPrincipalRepository {
	return &PostgresPrincipalRepository{pool: pool}
}

/*
Create persists a new principal record into the auth.principal table.

Parameters:
  - ctx: context.Context
  - principal: *Principal (Entity to persist)

Returns:
  - error: DUPLICATE_IDENTITY on unique violation, or connectivity errors
*/
func (repository *PostgresPrincipalRepository) Create(ctx context.Context, principal *Principal) error {
	const query = `
		INSERT INTO auth.principal (
			id, email, displayname, credentialhash, role, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := repository.pool.Exec(ctx, query,
		principal.ID,
		principal.Email,
		principal.DisplayName,
		principal.CredentialHash,
		principal.Role,
		principal.IsActive,
		principal.CreatedAt,
		principal.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "postgres_principal_repo_create_failed")
	}

	return nil
}

/*
FindByID retrieves a principal record by its unique ID.

Parameters:
  - ctx: context.Context
  - id: string (UUIDv7)

Returns:
  - *Principal: Hydrated entity
  - error: Not found or execution errors
*/
func (repository *PostgresPrincipalRepository) FindByID(ctx context.Context, id string) (*Principal, error) {
	const query = `
		SELECT id, email, displayname, credentialhash, role, isactive, lastloginat, createdat, updatedat
		FROM auth.principal
		WHERE id = $1`

	return repository.scanOne(repository.pool.QueryRow(ctx, query, id), "postgres_principal_repo_find_by_id_failed")
}

/*
FindByEmail retrieves a principal record by its unique email address.

Parameters:
  - ctx: context.Context
  - email: string

Returns:
  - *Principal: Hydrated entity
  - error: Not found or execution errors
*/
func (repository *PostgresPrincipalRepository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	const query = `
		SELECT id, email, displayname, credentialhash, role, isactive, lastloginat, createdat, updatedat
		FROM auth.principal
		WHERE lower(email) = lower($1)`

	return repository.scanOne(repository.pool.QueryRow(ctx, query, email), "postgres_principal_repo_find_by_email_failed")
}

/*
UpdateCredentialHash updates only the credential hash for a specific principal.

Parameters:
  - ctx: context.Context
  - principalID: string
  - newHash: string
  - now: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresPrincipalRepository) UpdateCredentialHash(ctx context.Context, principalID, newHash string, now time.Time) error {
	const query = `
		UPDATE auth.principal
		SET credentialhash = $2, updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, principalID, newHash, now)
	if err != nil {
		return dberr.Wrap(err, "postgres_principal_repo_update_credential_failed")
	}

	return nil
}

/*
TouchLastLogin stamps the last successful login time.

Parameters:
  - ctx: context.Context
  - principalID: string
  - now: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresPrincipalRepository) TouchLastLogin(ctx context.Context, principalID string, now time.Time) error {
	const query = "UPDATE auth.principal SET lastloginat = $2, updatedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(ctx, query, principalID, now)
	if err != nil {
		return dberr.Wrap(err, "postgres_principal_repo_touch_last_login_failed")
	}
	return nil
}

/*
Deactivate soft-closes a principal account.

Parameters:
  - ctx: context.Context
  - principalID: string
  - now: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresPrincipalRepository) Deactivate(ctx context.Context, principalID string, now time.Time) error {
	const query = "UPDATE auth.principal SET isactive = FALSE, updatedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(ctx, query, principalID, now)
	if err != nil {
		return dberr.Wrap(err, "postgres_principal_repo_deactivate_failed")
	}
	return nil
}

// scanOne hydrates a Principal from a single-row query.
func (repository *PostgresPrincipalRepository) scanOne(row pgx.Row, action string) (*Principal, error) {
	principal := &Principal{}
	err := row.Scan(
		&principal.ID,
		&principal.Email,
		&principal.DisplayName,
		&principal.CredentialHash,
		&principal.Role,
		&principal.IsActive,
		&principal.LastLoginAt,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err, action)
	}

	return principal, nil
}

// # Refresh Token Repository

// PostgresRefreshTokenRepository implements RefreshTokenRepository using pgx.
type PostgresRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository creates a new PostgreSQL implementation of RefreshTokenRepository.
func NewRefreshTokenRepository(pool *pgxpool.Pool) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{pool: pool}
}

const refreshTokenColumns = "id, ownerid, tokenhash, issuedat, expiresat, revokedat, revokedreason, replacedbyhash"

/*
Store persists a new refresh record into the auth.refreshtoken table.

Parameters:
  - ctx: context.Context
  - record: *RefreshTokenRecord

Returns:
  - error: Storage failures
*/
func (repository *PostgresRefreshTokenRepository) Store(ctx context.Context, record *RefreshTokenRecord) error {
	const query = `
		INSERT INTO auth.refreshtoken (
			id, ownerid, tokenhash, issuedat, expiresat
		) VALUES ($1, $2, $3, $4, $5)`

	_, err := repository.pool.Exec(ctx, query,
		record.ID,
		record.OwnerID,
		record.TokenHash,
		record.IssuedAt,
		record.ExpiresAt,
	)

	if err != nil {
		return dberr.Wrap(err, "postgres_refresh_repo_store_failed")
	}

	return nil
}

/*
LookupActive retrieves the record matching tokenHash only if it is still
active at 'now' (not revoked, not expired).

Parameters:
  - ctx: context.Context
  - tokenHash: string
  - now: time.Time

Returns:
  - *RefreshTokenRecord: Active record
  - error: dberr.ErrNotFound or execution errors
*/
func (repository *PostgresRefreshTokenRepository) LookupActive(ctx context.Context, tokenHash string, now time.Time) (*RefreshTokenRecord, error) {
	const query = `
		SELECT ` + refreshTokenColumns + `
		FROM auth.refreshtoken
		WHERE tokenhash = $1 AND revokedat IS NULL AND expiresat > $2`

	return scanRefreshToken(repository.pool.QueryRow(ctx, query, tokenHash, now), "postgres_refresh_repo_lookup_active_failed")
}

/*
Rotate atomically revokes the old record and inserts its successor.

The conditional UPDATE and the INSERT run as one statement (writable CTE), so
the whole rotation commits or does not happen at all. The WHERE clause of the
UPDATE is the double-spend guard: only a still-active row can be revoked, and
exactly one concurrent caller will match it.

Parameters:
  - ctx: context.Context
  - oldTokenHash: string
  - successor: *RefreshTokenRecord
  - now: time.Time

Returns:
  - *RefreshTokenRecord: The inserted successor
  - error: ErrAlreadyRotated when the conditional update matched no row
*/
func (repository *PostgresRefreshTokenRepository) Rotate(ctx context.Context, oldTokenHash string, successor *RefreshTokenRecord, now time.Time) (*RefreshTokenRecord, error) {
	const query = `
		WITH revoked AS (
			UPDATE auth.refreshtoken
			SET revokedat = $4, revokedreason = 'rotated', replacedbyhash = $2
			WHERE tokenhash = $1 AND revokedat IS NULL AND expiresat > $4
			RETURNING ownerid
		)
		INSERT INTO auth.refreshtoken (id, ownerid, tokenhash, issuedat, expiresat)
		SELECT $3, revoked.ownerid, $2, $5, $6
		FROM revoked
		RETURNING ` + refreshTokenColumns

	row := repository.pool.QueryRow(ctx, query,
		oldTokenHash,
		successor.TokenHash,
		successor.ID,
		now,
		successor.IssuedAt,
		successor.ExpiresAt,
	)

	inserted, err := scanRefreshToken(row, "postgres_refresh_repo_rotate_failed")
	if err != nil {
		// Zero rows from the CTE means the old record was not active: the
		// race was lost or the hash was already revoked.
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, ErrAlreadyRotated
		}
		return nil, err
	}

	return inserted, nil
}

/*
RevokeOne revokes the single active record matching tokenHash (idempotent).

Parameters:
  - ctx: context.Context
  - tokenHash: string
  - reason: RevocationReason
  - now: time.Time

Returns:
  - error: Execution errors only; zero matched rows is success
*/
func (repository *PostgresRefreshTokenRepository) RevokeOne(ctx context.Context, tokenHash string, reason RevocationReason, now time.Time) error {
	const query = `
		UPDATE auth.refreshtoken
		SET revokedat = $3, revokedreason = $2
		WHERE tokenhash = $1 AND revokedat IS NULL`

	_, err := repository.pool.Exec(ctx, query, tokenHash, reason, now)
	if err != nil {
		return dberr.Wrap(err, "postgres_refresh_repo_revoke_one_failed")
	}

	return nil
}

/*
RevokeAll revokes every currently-active record owned by a principal.

Parameters:
  - ctx: context.Context
  - ownerID: string
  - reason: RevocationReason
  - now: time.Time

Returns:
  - int64: Number of records revoked
  - error: Batch revocation failures
*/
func (repository *PostgresRefreshTokenRepository) RevokeAll(ctx context.Context, ownerID string, reason RevocationReason, now time.Time) (int64, error) {
	const query = `
		UPDATE auth.refreshtoken
		SET revokedat = $3, revokedreason = $2
		WHERE ownerid = $1 AND revokedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, ownerID, reason, now)
	if err != nil {
		return 0, dberr.Wrap(err, "postgres_refresh_repo_revoke_all_failed")
	}

	return tag.RowsAffected(), nil
}

/*
DetectReuse retrieves the record for tokenHash regardless of state.

Parameters:
  - ctx: context.Context
  - tokenHash: string

Returns:
  - *RefreshTokenRecord: Historical record
  - error: dberr.ErrNotFound or execution errors
*/
func (repository *PostgresRefreshTokenRepository) DetectReuse(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error) {
	const query = `
		SELECT ` + refreshTokenColumns + `
		FROM auth.refreshtoken
		WHERE tokenhash = $1`

	return scanRefreshToken(repository.pool.QueryRow(ctx, query, tokenHash), "postgres_refresh_repo_detect_reuse_failed")
}

/*
PurgeExpired permanently removes records whose expiry predates 'before'.

Parameters:
  - ctx: context.Context
  - before: time.Time

Returns:
  - int64: Number of records deleted
  - error: Cleanup failures
*/
func (repository *PostgresRefreshTokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = "DELETE FROM auth.refreshtoken WHERE expiresat <= $1"

	tag, err := repository.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, dberr.Wrap(err, "postgres_refresh_repo_purge_expired_failed")
	}

	return tag.RowsAffected(), nil
}

// scanRefreshToken hydrates a RefreshTokenRecord from a single-row query.
func scanRefreshToken(row pgx.Row, action string) (*RefreshTokenRecord, error) {
	record := &RefreshTokenRecord{}
	var reason *string

	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.TokenHash,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.RevokedAt,
		&reason,
		&record.ReplacedByHash,
	)

	if err != nil {
		return nil, dberr.Wrap(err, fmt.Sprintf("%s: scan", action))
	}

	if reason != nil {
		revocationReason := RevocationReason(*reason)
		record.RevokedReason = &revocationReason
	}

	return record, nil
}
