// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khoiminh/torii/internal/platform/apperr"
	"github.com/khoiminh/torii/internal/platform/clock"
	"github.com/khoiminh/torii/internal/platform/constants"
	"github.com/khoiminh/torii/internal/platform/dberr"
	"github.com/khoiminh/torii/internal/platform/sec"
	"github.com/khoiminh/torii/pkg/uuidv7"
)

// TokenIssuer abstracts the signing service the session layer depends on.
//
// # Why an interface?
//
// The service needs to mint access tokens but must not care about key
// material or signing algorithms. Tests substitute a deterministic issuer.
type TokenIssuer interface {
	MintAccessToken(principalID string, role sec.Role) (string, error)
	AccessTokenTTL() time.Duration
}

// RegisterInput carries the fields needed to create a principal. Validation
// happens at the transport layer; the service trusts these values.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
	Role        sec.Role
}

// Grant is the result of a successful login or refresh: a signed access token
// paired with the plaintext refresh secret. The secret exists in memory only
// for the duration of the response; the store keeps its hash.
type Grant struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	Principal    *Principal `json:"principal,omitempty"`
}

// Service orchestrates the full session lifecycle.
type Service struct {
	principals PrincipalRepository
	tokens     RefreshTokenRepository
	reuse      ReuseMonitor
	issuer     TokenIssuer
	clk        clock.Clock
	logger     *slog.Logger
	refreshTTL time.Duration
}

// NewService creates a new session Service.
func NewService(
	principals PrincipalRepository,
	tokens RefreshTokenRepository,
	reuse ReuseMonitor,
	issuer TokenIssuer,
	clk clock.Clock,
	logger *slog.Logger,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		principals: principals,
		tokens:     tokens,
		reuse:      reuse,
		issuer:     issuer,
		clk:        clk,
		logger:     logger,
		refreshTTL: refreshTTL,
	}
}

/*
Register creates a new principal with a freshly hashed credential and opens
its first session.

Parameters:
  - ctx: context.Context
  - input: RegisterInput (pre-validated by the transport layer)

Returns:
  - *Grant: Access token + refresh secret, with the created principal attached
  - error: DUPLICATE_IDENTITY, or hashing/persistence failures
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*Grant, error) {
	// ── 1. Credential Hashing ─────────────────────────────────────────────
	credentialHash, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// ── 2. Entity Construction ────────────────────────────────────────────
	role := input.Role
	if role == "" {
		role = sec.RoleMember
	}

	now := service.clk.Now()
	principal := &Principal{
		ID:             uuidv7.New(),
		Email:          input.Email,
		DisplayName:    input.DisplayName,
		CredentialHash: credentialHash,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// ── 3. Persistence ────────────────────────────────────────────────────
	if err := service.principals.Create(ctx, principal); err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "principal registered",
		slog.String("principal_id", principal.ID),
		slog.String("role", string(principal.Role)),
	)

	// ── 4. First Session ──────────────────────────────────────────────────
	return service.issueGrant(ctx, principal, now)
}

/*
Login authenticates an email/password pair and opens a new session.

The same INVALID_CREDENTIALS error covers unknown email and wrong password so
the endpoint cannot be used to enumerate accounts.

Parameters:
  - ctx: context.Context
  - email: string
  - password: string

Returns:
  - *Grant: Access token + fresh refresh secret
  - error: INVALID_CREDENTIALS, ACCOUNT_INACTIVE, CORRUPT_HASH, or persistence failures
*/
func (service *Service) Login(ctx context.Context, email, password string) (*Grant, error) {
	// ── 1. Principal Lookup ───────────────────────────────────────────────
	principal, err := service.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, apperr.InvalidCredentials()
		}
		return nil, err
	}

	// ── 2. Credential Verification ────────────────────────────────────────
	// Verification runs before the active check so timing does not reveal
	// account state to a caller holding a wrong password.
	match, err := sec.VerifyPassword(password, principal.CredentialHash)
	if err != nil {
		if errors.Is(err, sec.ErrCorruptHash) {
			service.logger.ErrorContext(ctx, "stored credential hash is corrupt",
				slog.String("principal_id", principal.ID),
			)
			return nil, apperr.CorruptHash(err)
		}
		return nil, apperr.Internal(err)
	}
	if !match {
		return nil, apperr.InvalidCredentials()
	}

	// ── 3. Account State ──────────────────────────────────────────────────
	if !principal.IsActive {
		return nil, apperr.AccountInactive()
	}

	// ── 4. Session Grant ──────────────────────────────────────────────────
	now := service.clk.Now()
	if err := service.principals.TouchLastLogin(ctx, principal.ID, now); err != nil {
		return nil, err
	}

	grant, err := service.issueGrant(ctx, principal, now)
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "login succeeded",
		slog.String("principal_id", principal.ID),
	)

	return grant, nil
}

/*
Refresh exchanges a valid refresh secret for a new access token and a new
refresh secret, rotating the old record in one atomic step.

# Reuse Detection

When the presented secret maps to a record that is already terminal, the
outcome depends on HOW it became terminal:
  - Revoked (any reason, including losing a concurrent rotation race):
    treated as replay. The owner's entire active family is revoked and a
    security event is recorded before TOKEN_REUSE_DETECTED is returned.
  - Merely expired: benign staleness, TOKEN_EXPIRED, no side effects.
  - Never issued: MALFORMED_TOKEN.

Parameters:
  - ctx: context.Context
  - refreshSecret: string (plaintext secret presented by the client)

Returns:
  - *Grant: New access token + successor refresh secret
  - error: TOKEN_EXPIRED, TOKEN_REUSE_DETECTED, MALFORMED_TOKEN, ACCOUNT_INACTIVE, or persistence failures
*/
func (service *Service) Refresh(ctx context.Context, refreshSecret string) (*Grant, error) {
	now := service.clk.Now()
	oldHash := sec.HashRefreshSecret(refreshSecret)

	// ── 1. Successor Minting ──────────────────────────────────────────────
	newSecret, err := sec.MintRefreshSecret(constants.RefreshSecretLength)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	successor := &RefreshTokenRecord{
		ID:        uuidv7.New(),
		TokenHash: sec.HashRefreshSecret(newSecret),
		IssuedAt:  now,
		ExpiresAt: now.Add(service.refreshTTL),
	}

	// ── 2. Atomic Rotation ────────────────────────────────────────────────
	// The conditional revoke-and-insert is a single store operation, so two
	// concurrent requests carrying the same secret cannot both succeed.
	inserted, err := service.tokens.Rotate(ctx, oldHash, successor, now)
	if err != nil {
		if errors.Is(err, ErrAlreadyRotated) {
			return nil, service.classifyRotationFailure(ctx, oldHash, now)
		}
		return nil, err
	}

	// ── 3. Owner Check ────────────────────────────────────────────────────
	principal, err := service.principals.FindByID(ctx, inserted.OwnerID)
	if err != nil {
		return nil, err
	}
	if !principal.IsActive {
		// The rotation already committed; close the successor so a
		// deactivated account cannot keep a live chain.
		_ = service.tokens.RevokeOne(ctx, inserted.TokenHash, ReasonAccountClosed, now)
		return nil, apperr.AccountInactive()
	}

	// ── 4. Access Token ───────────────────────────────────────────────────
	accessToken, err := service.issuer.MintAccessToken(principal.ID, principal.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: newSecret,
		TokenType:    constants.TokenTypeBearer,
		ExpiresIn:    int64(service.issuer.AccessTokenTTL().Seconds()),
		Principal:    principal,
	}, nil
}

// classifyRotationFailure decides what a failed conditional rotation means by
// inspecting the historical record for the presented hash.
func (service *Service) classifyRotationFailure(ctx context.Context, tokenHash string, now time.Time) error {
	record, err := service.tokens.DetectReuse(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return apperr.MalformedToken()
		}
		return err
	}

	// Expiry without revocation is staleness, not theft.
	if !record.Revoked() {
		return apperr.TokenExpired()
	}

	// ── Replay: revoke the whole family ───────────────────────────────────
	revoked, err := service.tokens.RevokeAll(ctx, record.OwnerID, ReasonSuspectedTheft, now)
	if err != nil {
		return err
	}

	if monitorErr := service.reuse.RecordIncident(ctx, record.OwnerID, tokenHash); monitorErr != nil {
		// Best effort only: a monitor outage must not mask the detection.
		service.logger.WarnContext(ctx, "failed to record reuse incident",
			slog.String("principal_id", record.OwnerID),
			slog.String("error", monitorErr.Error()),
		)
	}

	service.logger.WarnContext(ctx, "token_reuse_detected",
		slog.String("principal_id", record.OwnerID),
		slog.Int64("sessions_revoked", revoked),
	)

	return apperr.TokenReuseDetected()
}

/*
Logout revokes the presented refresh secret.

Idempotent: revoking an unknown, expired, or already-revoked secret succeeds
silently so the endpoint leaks nothing about token validity.

Parameters:
  - ctx: context.Context
  - refreshSecret: string

Returns:
  - error: Persistence failures only
*/
func (service *Service) Logout(ctx context.Context, refreshSecret string) error {
	now := service.clk.Now()
	return service.tokens.RevokeOne(ctx, sec.HashRefreshSecret(refreshSecret), ReasonLogout, now)
}

/*
ChangePassword replaces the principal's credential and revokes every active
session, forcing re-authentication everywhere.

Parameters:
  - ctx: context.Context
  - principalID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - error: INVALID_CREDENTIALS on current-password mismatch, or persistence failures
*/
func (service *Service) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	// ── 1. Re-authentication ──────────────────────────────────────────────
	principal, err := service.principals.FindByID(ctx, principalID)
	if err != nil {
		return err
	}

	match, err := sec.VerifyPassword(currentPassword, principal.CredentialHash)
	if err != nil {
		if errors.Is(err, sec.ErrCorruptHash) {
			return apperr.CorruptHash(err)
		}
		return apperr.Internal(err)
	}
	if !match {
		return apperr.InvalidCredentials()
	}

	// ── 2. Credential Swap ────────────────────────────────────────────────
	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}

	now := service.clk.Now()
	if err := service.principals.UpdateCredentialHash(ctx, principalID, newHash, now); err != nil {
		return err
	}

	// ── 3. Global Revocation ──────────────────────────────────────────────
	revoked, err := service.tokens.RevokeAll(ctx, principalID, ReasonPasswordChanged, now)
	if err != nil {
		return err
	}

	service.logger.InfoContext(ctx, "password changed",
		slog.String("principal_id", principalID),
		slog.Int64("sessions_revoked", revoked),
	)

	return nil
}

/*
CloseAccount deactivates the principal and revokes every active session.

The principal row is kept (soft close) so historical refresh records remain
attributable for audit.

Parameters:
  - ctx: context.Context
  - principalID: string

Returns:
  - error: Persistence failures
*/
func (service *Service) CloseAccount(ctx context.Context, principalID string) error {
	now := service.clk.Now()

	if err := service.principals.Deactivate(ctx, principalID, now); err != nil {
		return err
	}

	revoked, err := service.tokens.RevokeAll(ctx, principalID, ReasonAccountClosed, now)
	if err != nil {
		return err
	}

	service.logger.InfoContext(ctx, "account closed",
		slog.String("principal_id", principalID),
		slog.Int64("sessions_revoked", revoked),
	)

	return nil
}

/*
PurgeExpired removes refresh records whose expiry fell outside the retention
window. Called periodically by the janitor in cmd/api.

Parameters:
  - ctx: context.Context

Returns:
  - int64: Number of records deleted
  - error: Persistence failures
*/
func (service *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := service.clk.Now().Add(-constants.RefreshTokenRetention)

	purged, err := service.tokens.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		service.logger.InfoContext(ctx, "purged expired refresh records",
			slog.Int64("purged", purged),
		)
	}

	return purged, nil
}

// issueGrant mints a fresh refresh secret, persists its hashed record, and
// signs a matching access token.
func (service *Service) issueGrant(ctx context.Context, principal *Principal, now time.Time) (*Grant, error) {
	refreshSecret, err := sec.MintRefreshSecret(constants.RefreshSecretLength)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	record := &RefreshTokenRecord{
		ID:        uuidv7.New(),
		OwnerID:   principal.ID,
		TokenHash: sec.HashRefreshSecret(refreshSecret),
		IssuedAt:  now,
		ExpiresAt: now.Add(service.refreshTTL),
	}

	if err := service.tokens.Store(ctx, record); err != nil {
		return nil, err
	}

	accessToken, err := service.issuer.MintAccessToken(principal.ID, principal.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshSecret,
		TokenType:    constants.TokenTypeBearer,
		ExpiresIn:    int64(service.issuer.AccessTokenTTL().Seconds()),
		Principal:    principal,
	}, nil
}
