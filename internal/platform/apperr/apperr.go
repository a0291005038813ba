// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

/*
Package apperr defines the centralized error handling framework for Torii.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: A closed set of constructors covering every failure the auth
    lifecycle can produce, matched exhaustively by callers.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.

# Security

Credential and token failures deliberately carry generic messages so a caller
cannot distinguish "unknown account" from "wrong password" or "revoked token"
from "forged token" (account/token enumeration resistance).
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the canonical error type for the Torii API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "TOKEN_EXPIRED").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Credential Errors (401-class)

// InvalidCredentials creates the generic 401 returned for any credential
// failure. The same error covers "no such account" and "wrong password".
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid credentials",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// AccountInactive creates a 401 [AppError] for deactivated accounts.
func AccountInactive() *AppError {
	return &AppError{
		Code:       "ACCOUNT_INACTIVE",
		Message:    "Account is not active",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// MissingCredential creates a 401 [AppError] for requests lacking a bearer token.
func MissingCredential() *AppError {
	return &AppError{
		Code:       "MISSING_CREDENTIAL",
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// # Token Errors (401-class)

// TokenExpired creates a 401 [AppError] for expired access or refresh tokens.
func TokenExpired() *AppError {
	return &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "Token is expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenRevoked creates a 401 [AppError] for revoked refresh tokens.
func TokenRevoked() *AppError {
	return &AppError{
		Code:       "TOKEN_REVOKED",
		Message:    "Token is no longer valid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenReuseDetected creates a 401 [AppError] for the security-critical case
// of an already-rotated refresh secret being presented again. The client-safe
// message is indistinguishable from other token failures; the side effects
// (family revocation, security logging) happen before this error is returned.
func TokenReuseDetected() *AppError {
	return &AppError{
		Code:       "TOKEN_REUSE_DETECTED",
		Message:    "Token is no longer valid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// MalformedToken creates a 401 [AppError] for tokens that fail to parse or
// carry the wrong type.
func MalformedToken() *AppError {
	return &AppError{
		Code:       "MALFORMED_TOKEN",
		Message:    "Token is invalid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Principal") // Returns "Principal not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// DuplicateIdentity creates a 409 [AppError] for an email that is already registered.
func DuplicateIdentity() *AppError {
	return &AppError{
		Code:       "DUPLICATE_IDENTITY",
		Message:    "Identity is already registered",
		HTTPStatus: http.StatusConflict,
	}
}

// Conflict creates a 409 [AppError] for other unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// CorruptHash creates a 500 [AppError] for a stored credential hash that can
// no longer be parsed. This indicates data corruption and should alert; it is
// never treated as a user-facing auth failure.
func CorruptHash(cause error) *AppError {
	return &AppError{
		Code:       "CORRUPT_HASH",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// StoreUnavailable creates a 503 [AppError] for store timeouts and
// connectivity failures. It is retryable and kept distinct from every
// authentication error so clients do not prompt for re-login on
// infrastructure blips.
func StoreUnavailable(cause error) *AppError {
	return &AppError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "Service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for maintenance mode.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsCode reports whether err is an [*AppError] carrying the given code.
func IsCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
