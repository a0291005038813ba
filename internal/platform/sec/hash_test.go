// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package sec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoiminh/torii/internal/platform/sec"
)

/*
TestHashPassword_Format checks that the encoded hash is a self-describing
argon2id PHC string.
*/
func TestHashPassword_Format(t *testing.T) {
	encoded, err := sec.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"), "got %q", encoded)
	assert.Len(t, strings.Split(encoded, "$"), 6)
}

/*
TestHashPassword_EmptyRejected checks that empty input never produces a hash.
*/
func TestHashPassword_EmptyRejected(t *testing.T) {
	_, err := sec.HashPassword("")
	assert.ErrorIs(t, err, sec.ErrEmptyPassword)
}

/*
TestHashPassword_UniqueSalt checks that hashing the same password twice never
yields the same encoded hash.
*/
func TestHashPassword_UniqueSalt(t *testing.T) {
	first, err := sec.HashPassword("same-password")
	require.NoError(t, err)

	second, err := sec.HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

/*
TestVerifyPassword_RoundTrip checks match and mismatch outcomes against a
freshly produced hash.
*/
func TestVerifyPassword_RoundTrip(t *testing.T) {
	encoded, err := sec.HashPassword("s3cret-value")
	require.NoError(t, err)

	match, err := sec.VerifyPassword("s3cret-value", encoded)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = sec.VerifyPassword("wrong-value", encoded)
	require.NoError(t, err)
	assert.False(t, match)
}

/*
TestVerifyPassword_CorruptHash checks that malformed stored hashes surface as
ErrCorruptHash instead of a silent mismatch.
*/
func TestVerifyPassword_CorruptHash(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"garbage", "not-a-hash"},
		{"wrong_algorithm", "$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$a2V5"},
		{"missing_sections", "$argon2id$v=19$m=65536,t=3,p=2"},
		{"bad_version", "$argon2id$v=12$m=65536,t=3,p=2$c2FsdA$a2V5"},
		{"bad_salt_encoding", "$argon2id$v=19$m=65536,t=3,p=2$!!!$a2V5"},
		{"bad_key_encoding", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := sec.VerifyPassword("anything", tt.encoded)
			assert.False(t, match)
			assert.ErrorIs(t, err, sec.ErrCorruptHash)
		})
	}
}

/*
TestMintRefreshSecret checks entropy length and uniqueness of minted secrets.
*/
func TestMintRefreshSecret(t *testing.T) {
	first, err := sec.MintRefreshSecret(32)
	require.NoError(t, err)

	second, err := sec.MintRefreshSecret(32)
	require.NoError(t, err)

	// 32 raw bytes -> 43 base64url characters, no padding.
	assert.Len(t, first, 43)
	assert.NotContains(t, first, "=")
	assert.NotEqual(t, first, second)
}

/*
TestHashRefreshSecret_Deterministic checks that the lookup hash is stable for
the same secret and distinct across secrets.
*/
func TestHashRefreshSecret_Deterministic(t *testing.T) {
	secret, err := sec.MintRefreshSecret(32)
	require.NoError(t, err)

	assert.Equal(t, sec.HashRefreshSecret(secret), sec.HashRefreshSecret(secret))
	assert.NotEqual(t, sec.HashRefreshSecret(secret), sec.HashRefreshSecret(secret+"x"))
	assert.NotEqual(t, secret, sec.HashRefreshSecret(secret))
}
