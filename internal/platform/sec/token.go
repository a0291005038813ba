// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, Token Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via the session.TokenIssuer interface.
package sec

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/khoiminh/torii/internal/platform/clock"
)

// TokenTypeAccess is the 'typ' claim stamped into every access token.
//
// Refresh secrets are deliberately NOT signed tokens: an opaque random value
// has no claims to tamper with. The type claim guards against a structured
// token of another kind being substituted where an access token is expected.
const TokenTypeAccess = "access"

// # Verification Errors

var (
	// ErrTokenExpired is returned when the access token's 'exp' has passed.
	ErrTokenExpired = errors.New("sec: access token is expired")

	// ErrTokenMalformed is returned when the token fails to parse or its
	// signature does not verify.
	ErrTokenMalformed = errors.New("sec: access token is malformed")

	// ErrWrongTokenType is returned when a structurally valid token carries
	// a 'typ' claim other than [TokenTypeAccess].
	ErrWrongTokenType = errors.New("sec: token is not an access token")
)

// AuthClaims represents the payload embedded inside a signed access token.
//
// # Why custom claims?
//
// By embedding the Role directly inside the token, the authorization guard
// can reconstruct the caller's context WITHOUT querying the database on every
// single API request. Access-token verification is store-free by design.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the payload small.
	Role      string `json:"rol"`
	TokenType string `json:"typ"`
}

// PrincipalID returns the subject of the token: the owning principal's ID.
func (c *AuthClaims) PrincipalID() string { return c.Subject }

// TokenService handles generation and verification of access tokens (RS256)
// and minting/hashing of opaque refresh secrets.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	clk        clock.Clock
}

// NewTokenService creates a new TokenService.
// It reads RSA keys from the provided filesystem paths.
func NewTokenService(privateKeyPath, publicKeyPath, issuer string, accessTTL time.Duration, clk clock.Clock) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return NewTokenServiceWithKeys(privateKey, publicKey, issuer, accessTTL, clk), nil
}

// NewTokenServiceWithKeys creates a TokenService from in-memory RSA keys.
// Used directly by tests; production wiring goes through [NewTokenService].
func NewTokenServiceWithKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer string, accessTTL time.Duration, clk clock.Clock) *TokenService {
	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		clk:        clk,
	}
}

// AccessTokenTTL returns the configured access token lifetime.
func (service *TokenService) AccessTokenTTL() time.Duration {
	return service.accessTTL
}

// MintAccessToken creates a new signed access token for a principal.
func (service *TokenService) MintAccessToken(principalID string, role Role) (string, error) {
	currentTime := service.clk.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(service.accessTTL)),
		},
		Role:      string(role),
		TokenType: TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyAccessToken checks the signature, validity window, and token type of
// a signed access token.
//
// # Failure Modes
//   - [ErrTokenExpired]: signature is fine but 'exp' has passed.
//   - [ErrWrongTokenType]: a valid token of another type was substituted.
//   - [ErrTokenMalformed]: everything else (bad signature, garbage input).
func (service *TokenService) VerifyAccessToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	}, jwt.WithTimeFunc(service.clk.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}

// # Refresh Secrets

// MintRefreshSecret generates a cryptographically random opaque secret.
//
// The secret is 256 bits of entropy encoded base64url. It cannot be forged or
// have claims tampered with, only guessed (infeasible) or stolen (handled by
// rotation + reuse detection).
func MintRefreshSecret(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sec: failed to generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashRefreshSecret derives the deterministic store lookup key for a secret.
//
// Unlike [HashPassword], this hash is unsalted SHA-256: the same secret must
// always map to the same key so the store can index it. Guessing resistance
// comes from the secret's own 256 bits of entropy, not from a salt.
func HashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
