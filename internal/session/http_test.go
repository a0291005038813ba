// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoiminh/torii/internal/platform/middleware"
	"github.com/khoiminh/torii/internal/platform/sec"
	"github.com/khoiminh/torii/internal/session"
)

// stubTokenVerifier accepts the tokens produced by stubIssuer and maps them
// back to claims carrying the embedded principal ID.
type stubTokenVerifier struct{}

func (stubTokenVerifier) VerifyAccessToken(tokenString string) (*sec.AuthClaims, error) {
	principalID, found := strings.CutPrefix(tokenString, "signed-access-token-")
	if !found {
		return nil, sec.ErrTokenMalformed
	}
	return &sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: principalID},
		Role:             string(sec.RoleMember),
		TokenType:        sec.TokenTypeAccess,
	}, nil
}

// newTestRouter mounts the session routes behind the bearer middleware, the
// way the composition root does.
func newTestRouter(f *fixture) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Authenticate(stubTokenVerifier{}))
	router.Mount("/auth", session.NewHandler(f.service).Routes())
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

/*
TestHTTP_RegisterLoginRefresh drives the full public flow end to end through
the router: register, login, then rotate the refresh secret.
*/
func TestHTTP_RegisterLoginRefresh(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	// ── Register ──────────────────────────────────────────────────────────
	recorder := doJSON(t, router, http.MethodPost, "/auth/register", "",
		`{"email":"khoi@torii.dev","display_name":"Khoi","password":"original-pass-123"}`)
	require.Equal(t, http.StatusCreated, recorder.Code)

	var registered struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			Principal    struct {
				ID    string `json:"id"`
				Email string `json:"email"`
				Role  string `json:"role"`
			} `json:"principal"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &registered))
	assert.NotEmpty(t, registered.Data.AccessToken)
	assert.NotEmpty(t, registered.Data.RefreshToken)
	assert.NotEmpty(t, registered.Data.Principal.ID)
	assert.Equal(t, "member", registered.Data.Principal.Role)

	// The credential hash must never appear in any response.
	assert.NotContains(t, recorder.Body.String(), "credential")
	assert.NotContains(t, recorder.Body.String(), "argon2id")

	// ── Login ─────────────────────────────────────────────────────────────
	recorder = doJSON(t, router, http.MethodPost, "/auth/login", "",
		`{"email":"khoi@torii.dev","password":"original-pass-123"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var granted struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int64  `json:"expires_in"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &granted))
	assert.NotEmpty(t, granted.Data.AccessToken)
	assert.NotEmpty(t, granted.Data.RefreshToken)
	assert.Equal(t, "Bearer", granted.Data.TokenType)
	assert.Equal(t, int64(900), granted.Data.ExpiresIn)

	// ── Refresh ───────────────────────────────────────────────────────────
	recorder = doJSON(t, router, http.MethodPost, "/auth/refresh", "",
		`{"refresh_token":"`+granted.Data.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var rotated struct {
		Data struct {
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &rotated))
	assert.NotEqual(t, granted.Data.RefreshToken, rotated.Data.RefreshToken)

	// Replaying the consumed secret is flagged.
	recorder = doJSON(t, router, http.MethodPost, "/auth/refresh", "",
		`{"refresh_token":"`+granted.Data.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "TOKEN_REUSE_DETECTED")
}

/*
TestHTTP_Validation checks the 400 envelope for structurally invalid input.
*/
func TestHTTP_Validation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"register_bad_email", "/auth/register", `{"email":"nope","display_name":"X","password":"long-enough-pass"}`},
		{"register_short_password", "/auth/register", `{"email":"a@b.dev","display_name":"X","password":"short"}`},
		{"login_missing_fields", "/auth/login", `{}`},
		{"refresh_missing_token", "/auth/refresh", `{}`},
		{"broken_json", "/auth/login", `{"email":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := doJSON(t, router, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Contains(t, recorder.Body.String(), "VALIDATION_ERROR")
		})
	}
}

/*
TestHTTP_ProtectedRoutes checks that logout, change-password, and account
closure demand a bearer token and behave once one is presented.
*/
func TestHTTP_ProtectedRoutes(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	principal := f.register(t, "khoi@torii.dev")
	grant := f.login(t, "khoi@torii.dev")

	// Anonymous requests bounce with 401.
	recorder := doJSON(t, router, http.MethodPost, "/auth/logout", "",
		`{"refresh_token":"`+grant.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "MISSING_CREDENTIAL")

	// ── Change password ───────────────────────────────────────────────────
	recorder = doJSON(t, router, http.MethodPost, "/auth/change-password", grant.AccessToken,
		`{"current_password":"original-pass-123","new_password":"brand-new-pass-456"}`)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, 0, f.store.ActiveCount(principal.ID, f.clk.Now()))

	// ── Logout (idempotent, secret already dead from the change) ──────────
	recorder = doJSON(t, router, http.MethodPost, "/auth/logout", grant.AccessToken,
		`{"refresh_token":"`+grant.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	// ── Close account ─────────────────────────────────────────────────────
	recorder = doJSON(t, router, http.MethodDelete, "/auth/account", grant.AccessToken, "")
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	stored, err := f.store.FindByID(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}
