// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoiminh/torii/internal/platform/clock"
	"github.com/khoiminh/torii/internal/platform/sec"
)

// newTestTokenService builds a TokenService with a throwaway RSA key pair and
// a fake clock pinned at start.
func newTestTokenService(t *testing.T, accessTTL time.Duration, start time.Time) (*sec.TokenService, *clock.Fake) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fakeClock := clock.NewFake(start)
	service := sec.NewTokenServiceWithKeys(key, &key.PublicKey, "torii.test", accessTTL, fakeClock)

	return service, fakeClock
}

/*
TestTokenService_MintAndVerify checks the full sign/verify round trip and the
claims embedded in the token.
*/
func TestTokenService_MintAndVerify(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	service, _ := newTestTokenService(t, 15*time.Minute, start)

	signed, err := service.MintAccessToken("principal-123", sec.RoleAdmin)
	require.NoError(t, err)

	claims, err := service.VerifyAccessToken(signed)
	require.NoError(t, err)

	assert.Equal(t, "principal-123", claims.PrincipalID())
	assert.Equal(t, string(sec.RoleAdmin), claims.Role)
	assert.Equal(t, sec.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "torii.test", claims.Issuer)
	assert.Equal(t, start.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

/*
TestTokenService_Expiry checks that a token verifies right up to its TTL and
fails with ErrTokenExpired the moment the clock passes it.
*/
func TestTokenService_Expiry(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	service, fakeClock := newTestTokenService(t, 15*time.Minute, start)

	signed, err := service.MintAccessToken("principal-123", sec.RoleMember)
	require.NoError(t, err)

	// Just before expiry: still valid.
	fakeClock.Advance(15*time.Minute - time.Second)
	_, err = service.VerifyAccessToken(signed)
	require.NoError(t, err)

	// Past expiry: rejected with the precise sentinel.
	fakeClock.Advance(2 * time.Second)
	_, err = service.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
}

/*
TestTokenService_Garbage checks that non-token input and tampered signatures
are rejected as malformed.
*/
func TestTokenService_Garbage(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	service, _ := newTestTokenService(t, 15*time.Minute, start)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not_a_jwt", "hello.world"},
		{"random_text", "eyJhbGciOiJub25lIn0.e30."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.VerifyAccessToken(tt.token)
			assert.ErrorIs(t, err, sec.ErrTokenMalformed)
		})
	}
}

/*
TestTokenService_ForeignKeyRejected checks that a token signed by a different
key pair does not verify.
*/
func TestTokenService_ForeignKeyRejected(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	service, _ := newTestTokenService(t, 15*time.Minute, start)
	foreign, _ := newTestTokenService(t, 15*time.Minute, start)

	signed, err := foreign.MintAccessToken("principal-123", sec.RoleMember)
	require.NoError(t, err)

	_, err = service.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

/*
TestTokenService_WrongTypeRejected checks that a structurally valid token with
a non-access 'typ' claim is rejected even though its signature verifies.
*/
func TestTokenService_WrongTypeRejected(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fakeClock := clock.NewFake(start)
	service := sec.NewTokenServiceWithKeys(key, &key.PublicKey, "torii.test", 15*time.Minute, fakeClock)

	// Hand-sign a token of another type with the SAME key.
	claims := sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-123",
			Issuer:    "torii.test",
			IssuedAt:  jwt.NewNumericDate(start),
			ExpiresAt: jwt.NewNumericDate(start.Add(time.Hour)),
		},
		Role:      string(sec.RoleMember),
		TokenType: "verification",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = service.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, sec.ErrWrongTokenType)
}
