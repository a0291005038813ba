// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// # Password Hashing (argon2id)

// Credential hashing uses argon2id, a memory-hard function: brute-forcing a
// leaked hash requires the same memory budget per guess, which neutralizes
// GPU farms. Each call draws a fresh random salt, so identical passwords
// never share an encoded hash.

const (
	argonMemoryKB    uint32 = 64 * 1024
	argonTime        uint32 = 3
	argonParallelism uint8  = 2
	argonSaltLength         = 16
	argonKeyLength   uint32 = 32
)

var (
	// ErrEmptyPassword is returned by [HashPassword] for empty input.
	ErrEmptyPassword = errors.New("sec: password must not be empty")

	// ErrCorruptHash is returned by [VerifyPassword] when the stored hash
	// cannot be parsed. This signals data corruption, not a wrong password.
	ErrCorruptHash = errors.New("sec: stored credential hash is malformed")
)

// HashPassword hashes a plain-text password using argon2id.
//
// The result is a self-describing PHC string
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash) so parameters can evolve
// without invalidating stored hashes.
func HashPassword(plainTextPassword string) (string, error) {
	if plainTextPassword == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plainTextPassword), salt, argonTime, argonMemoryKB, argonParallelism, argonKeyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemoryKB,
		argonTime,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

// VerifyPassword compares a plain-text password with its stored argon2id hash.
//
// The comparison is constant-time. A mismatch returns (false, nil); an error
// is returned only when the stored hash itself is malformed ([ErrCorruptHash]).
func VerifyPassword(plainTextPassword, encodedHash string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := parseArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plainTextPassword), salt, timeCost, memory, parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// parseArgon2Hash decodes the PHC representation produced by [HashPassword].
func parseArgon2Hash(encodedHash string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, ErrCorruptHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, ErrCorruptHash
	}

	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &p); err != nil {
		return 0, 0, 0, nil, nil, ErrCorruptHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, ErrCorruptHash
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, ErrCorruptHash
	}

	return memory, timeCost, p, salt, key, nil
}
