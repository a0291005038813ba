// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoiminh/torii/internal/platform/apperr"
	"github.com/khoiminh/torii/internal/platform/clock"
	"github.com/khoiminh/torii/internal/platform/sec"
	"github.com/khoiminh/torii/internal/session"
)

// stubIssuer is a deterministic TokenIssuer so service tests do not pay for
// RSA signing. Token content is irrelevant here; sec has its own tests.
type stubIssuer struct{ ttl time.Duration }

func (s stubIssuer) MintAccessToken(principalID string, _ sec.Role) (string, error) {
	return "signed-access-token-" + principalID, nil
}

func (s stubIssuer) AccessTokenTTL() time.Duration { return s.ttl }

// fixture bundles a service wired to in-memory dependencies.
type fixture struct {
	store   *session.MemoryStore
	monitor *session.MemoryReuseMonitor
	clk     *clock.Fake
	service *session.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := session.NewMemoryStore()
	monitor := session.NewMemoryReuseMonitor()
	fakeClock := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := session.NewService(
		store,
		store,
		monitor,
		stubIssuer{ttl: 15 * time.Minute},
		fakeClock,
		logger,
		7*24*time.Hour,
	)

	return &fixture{store: store, monitor: monitor, clk: fakeClock, service: service}
}

// register creates a principal with a known password. The registration grant
// is logged out immediately so each test drives its sessions through login.
func (f *fixture) register(t *testing.T, email string) *session.Principal {
	t.Helper()

	grant, err := f.service.Register(context.Background(), session.RegisterInput{
		Email:       email,
		DisplayName: "Test Principal",
		Password:    "original-pass-123",
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(context.Background(), grant.RefreshToken))

	return grant.Principal
}

// login opens a session for a principal created via register.
func (f *fixture) login(t *testing.T, email string) *session.Grant {
	t.Helper()

	grant, err := f.service.Login(context.Background(), email, "original-pass-123")
	require.NoError(t, err)

	return grant
}

/*
TestRegister checks that registration creates the principal, opens its first
session, and rejects duplicate emails.
*/
func TestRegister(t *testing.T) {
	f := newFixture(t)

	grant, err := f.service.Register(context.Background(), session.RegisterInput{
		Email:       "khoi@torii.dev",
		DisplayName: "Khoi",
		Password:    "original-pass-123",
	})
	require.NoError(t, err)

	// A full grant comes back alongside the principal.
	assert.NotEmpty(t, grant.AccessToken)
	assert.NotEmpty(t, grant.RefreshToken)

	principal := grant.Principal
	require.NotNil(t, principal)
	assert.NotEmpty(t, principal.ID)
	assert.Equal(t, sec.RoleMember, principal.Role)
	assert.True(t, principal.IsActive)
	assert.NotEmpty(t, principal.CredentialHash)
	assert.NotEqual(t, "original-pass-123", principal.CredentialHash)
	assert.Equal(t, 1, f.store.ActiveCount(principal.ID, f.clk.Now()))

	_, err = f.service.Register(context.Background(), session.RegisterInput{
		Email:       "khoi@torii.dev",
		DisplayName: "Imposter",
		Password:    "another-pass-456",
	})
	assert.True(t, apperr.IsCode(err, "DUPLICATE_IDENTITY"))
}

/*
TestLogin_Success checks the grant shape and login bookkeeping.
*/
func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")

	grant := f.login(t, "khoi@torii.dev")

	assert.NotEmpty(t, grant.AccessToken)
	assert.NotEmpty(t, grant.RefreshToken)
	assert.Equal(t, "Bearer", grant.TokenType)
	assert.Equal(t, int64(900), grant.ExpiresIn)
	require.NotNil(t, grant.Principal)
	assert.Equal(t, principal.ID, grant.Principal.ID)

	// Login stamped LastLoginAt and opened exactly one session.
	stored, err := f.store.FindByID(context.Background(), principal.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, 1, f.store.ActiveCount(principal.ID, f.clk.Now()))
}

/*
TestLogin_Failures checks that unknown email and wrong password produce the
same indistinguishable error, and that inactive accounts are refused.
*/
func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")

	_, err := f.service.Login(context.Background(), "nobody@torii.dev", "original-pass-123")
	assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))

	_, err = f.service.Login(context.Background(), "khoi@torii.dev", "wrong-pass")
	assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))

	require.NoError(t, f.service.CloseAccount(context.Background(), principal.ID))
	_, err = f.service.Login(context.Background(), "khoi@torii.dev", "original-pass-123")
	assert.True(t, apperr.IsCode(err, "ACCOUNT_INACTIVE"))
}

/*
TestRefresh_Rotation checks the happy path: the old secret is retired with
reason 'rotated', a new secret is issued, and the active session count stays
at exactly one.
*/
func TestRefresh_Rotation(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	grant := f.login(t, "khoi@torii.dev")

	rotated, err := f.service.Refresh(context.Background(), grant.RefreshToken)
	require.NoError(t, err)

	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, grant.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, 1, f.store.ActiveCount(principal.ID, f.clk.Now()))

	// The old record is terminal with the rotation reason and a successor link.
	oldRecord, err := f.store.DetectReuse(context.Background(), sec.HashRefreshSecret(grant.RefreshToken))
	require.NoError(t, err)
	assert.True(t, oldRecord.Revoked())
	require.NotNil(t, oldRecord.RevokedReason)
	assert.Equal(t, session.ReasonRotated, *oldRecord.RevokedReason)
	require.NotNil(t, oldRecord.ReplacedByHash)
	assert.Equal(t, sec.HashRefreshSecret(rotated.RefreshToken), *oldRecord.ReplacedByHash)

	// The successor chain keeps working.
	_, err = f.service.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

/*
TestRefresh_NeverIssued checks that a secret with no record at all is rejected
as malformed, with no side effects.
*/
func TestRefresh_NeverIssued(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	f.login(t, "khoi@torii.dev")

	_, err := f.service.Refresh(context.Background(), "never-issued-secret")
	assert.True(t, apperr.IsCode(err, "MALFORMED_TOKEN"))

	// The legitimate session is untouched.
	assert.Equal(t, 1, f.store.ActiveCount(principal.ID, f.clk.Now()))
	assert.Equal(t, 0, f.monitor.IncidentCount(principal.ID))
}

/*
TestRefresh_Expired checks that presenting a stale-but-unrevoked secret is
benign: TOKEN_EXPIRED, no family revocation, no incident.
*/
func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	grant := f.login(t, "khoi@torii.dev")

	f.clk.Advance(7*24*time.Hour + time.Minute)

	_, err := f.service.Refresh(context.Background(), grant.RefreshToken)
	assert.True(t, apperr.IsCode(err, "TOKEN_EXPIRED"))
	assert.Equal(t, 0, f.monitor.IncidentCount(principal.ID))
}

/*
TestRefresh_ReuseDetected checks the replay path: presenting an
already-rotated secret revokes the ENTIRE family and records an incident.
*/
func TestRefresh_ReuseDetected(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	grant := f.login(t, "khoi@torii.dev")

	rotated, err := f.service.Refresh(context.Background(), grant.RefreshToken)
	require.NoError(t, err)

	// Replay the retired secret.
	_, err = f.service.Refresh(context.Background(), grant.RefreshToken)
	assert.True(t, apperr.IsCode(err, "TOKEN_REUSE_DETECTED"))

	// The legitimate successor went down with the family.
	assert.Equal(t, 0, f.store.ActiveCount(principal.ID, f.clk.Now()))
	assert.Equal(t, 1, f.monitor.IncidentCount(principal.ID))

	// The successor is now revoked too, so presenting it is also reuse.
	_, err = f.service.Refresh(context.Background(), rotated.RefreshToken)
	assert.True(t, apperr.IsCode(err, "TOKEN_REUSE_DETECTED"))
}

/*
TestRefresh_ConcurrentSingleWinner hammers Refresh with the same secret from
many goroutines: exactly one rotation must win; every loser is treated as a
replay.
*/
func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.register(t, "khoi@torii.dev")
	grant := f.login(t, "khoi@torii.dev")

	const attempts = 16

	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = f.service.Refresh(context.Background(), grant.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, apperr.IsCode(err, "TOKEN_REUSE_DETECTED"), "unexpected error: %v", err)
	}

	assert.Equal(t, 1, winners)
}

/*
TestLogout checks revocation and idempotency: a logged-out secret is dead, and
logging out twice (or with an unknown secret) is still a success.
*/
func TestLogout(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	grant := f.login(t, "khoi@torii.dev")

	require.NoError(t, f.service.Logout(context.Background(), grant.RefreshToken))
	assert.Equal(t, 0, f.store.ActiveCount(principal.ID, f.clk.Now()))

	// Idempotent re-logout and unknown-secret logout both succeed.
	require.NoError(t, f.service.Logout(context.Background(), grant.RefreshToken))
	require.NoError(t, f.service.Logout(context.Background(), "never-issued-secret"))

	// A revoked secret presented to Refresh is a replay signal.
	_, err := f.service.Refresh(context.Background(), grant.RefreshToken)
	assert.True(t, apperr.IsCode(err, "TOKEN_REUSE_DETECTED"))
}

/*
TestChangePassword checks re-authentication, credential replacement, and the
global session revocation that follows.
*/
func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	f.login(t, "khoi@torii.dev")
	f.login(t, "khoi@torii.dev") // second device

	// Wrong current password is refused without side effects.
	err := f.service.ChangePassword(context.Background(), principal.ID, "wrong-pass", "brand-new-pass-456")
	assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))
	assert.Equal(t, 2, f.store.ActiveCount(principal.ID, f.clk.Now()))

	// Successful change kills every session.
	err = f.service.ChangePassword(context.Background(), principal.ID, "original-pass-123", "brand-new-pass-456")
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.ActiveCount(principal.ID, f.clk.Now()))

	// Old credential is gone, new one works.
	_, err = f.service.Login(context.Background(), "khoi@torii.dev", "original-pass-123")
	assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))

	_, err = f.service.Login(context.Background(), "khoi@torii.dev", "brand-new-pass-456")
	require.NoError(t, err)
}

/*
TestCloseAccount checks deactivation plus family revocation.
*/
func TestCloseAccount(t *testing.T) {
	f := newFixture(t)
	principal := f.register(t, "khoi@torii.dev")
	f.login(t, "khoi@torii.dev")

	require.NoError(t, f.service.CloseAccount(context.Background(), principal.ID))

	stored, err := f.store.FindByID(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 0, f.store.ActiveCount(principal.ID, f.clk.Now()))
}

/*
TestPurgeExpired checks the janitor horizon: records past the retention window
are deleted, everything newer survives.
*/
func TestPurgeExpired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "khoi@torii.dev")
	f.login(t, "khoi@torii.dev")

	// Within retention: nothing to purge yet even though the record expired.
	f.clk.Advance(8 * 24 * time.Hour)
	purged, err := f.service.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	// Far past retention: both stale records (the revoked registration grant
	// and the expired login session) go; a fresh session stays.
	f.clk.Advance(31 * 24 * time.Hour)
	freshGrant := f.login(t, "khoi@torii.dev")

	purged, err = f.service.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	_, err = f.service.Refresh(context.Background(), freshGrant.RefreshToken)
	require.NoError(t, err)
}
