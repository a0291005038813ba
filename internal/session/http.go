// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khoiminh/torii/internal/platform/middleware"
	requestutil "github.com/khoiminh/torii/internal/platform/request"
	"github.com/khoiminh/torii/internal/platform/respond"
	"github.com/khoiminh/torii/internal/platform/validate"
)

// # Request DTOs

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// # Handler

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a new session Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the session endpoints on a fresh chi sub-router.
//
// # Layout
//
//	POST   /register         — public
//	POST   /login            — public
//	POST   /refresh          — public (the refresh secret IS the credential)
//	POST   /logout           — authenticated
//	POST   /change-password  — authenticated
//	DELETE /account          — authenticated
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.Register)
	router.Post("/login", handler.Login)
	router.Post("/refresh", handler.Refresh)

	router.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth)
		protected.Post("/logout", handler.Logout)
		protected.Post("/change-password", handler.ChangePassword)
		protected.Delete("/account", handler.CloseAccount)
	})

	return router
}

/*
Register handles POST /register.

Responses:
  - 201: Grant for the freshly created principal
  - 400: VALIDATION_ERROR
  - 409: DUPLICATE_IDENTITY
*/
func (handler *Handler) Register(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Decode ─────────────────────────────────────────────────────────
	var body registerRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Validate ───────────────────────────────────────────────────────
	v := &validate.Validator{}
	err := v.
		Required("email", body.Email).
		Email("email", body.Email).
		MaxLen("email", body.Email, 254).
		Required("display_name", body.DisplayName).
		MaxLen("display_name", body.DisplayName, 100).
		Required("password", body.Password).
		MinLen("password", body.Password, 8).
		MaxLen("password", body.Password, 128).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Execute ────────────────────────────────────────────────────────
	grant, err := handler.service.Register(request.Context(), RegisterInput{
		Email:       body.Email,
		DisplayName: body.DisplayName,
		Password:    body.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, grant)
}

/*
Login handles POST /login.

Responses:
  - 200: Grant (access token + refresh secret)
  - 400: VALIDATION_ERROR
  - 401: INVALID_CREDENTIALS, ACCOUNT_INACTIVE
*/
func (handler *Handler) Login(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Decode ─────────────────────────────────────────────────────────
	var body loginRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Validate ───────────────────────────────────────────────────────
	v := &validate.Validator{}
	err := v.
		Required("email", body.Email).
		Required("password", body.Password).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Execute ────────────────────────────────────────────────────────
	grant, err := handler.service.Login(request.Context(), body.Email, body.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, grant)
}

/*
Refresh handles POST /refresh.

Responses:
  - 200: Grant with the rotated refresh secret
  - 400: VALIDATION_ERROR
  - 401: TOKEN_EXPIRED, TOKEN_REUSE_DETECTED, MALFORMED_TOKEN
*/
func (handler *Handler) Refresh(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Decode ─────────────────────────────────────────────────────────
	var body refreshRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Validate ───────────────────────────────────────────────────────
	v := &validate.Validator{}
	if err := v.Required("refresh_token", body.RefreshToken).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Execute ────────────────────────────────────────────────────────
	grant, err := handler.service.Refresh(request.Context(), body.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, grant)
}

/*
Logout handles POST /logout.

Always 204 for a well-formed request: revocation is idempotent so the
endpoint leaks nothing about whether the presented secret was valid.

Responses:
  - 204: Revoked (or already terminal)
  - 400: VALIDATION_ERROR
  - 401: MISSING_CREDENTIAL
*/
func (handler *Handler) Logout(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Decode ─────────────────────────────────────────────────────────
	var body refreshRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Validate ───────────────────────────────────────────────────────
	v := &validate.Validator{}
	if err := v.Required("refresh_token", body.RefreshToken).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Execute ────────────────────────────────────────────────────────
	if err := handler.service.Logout(request.Context(), body.RefreshToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ChangePassword handles POST /change-password.

Responses:
  - 204: Credential replaced, all sessions revoked
  - 400: VALIDATION_ERROR
  - 401: MISSING_CREDENTIAL, INVALID_CREDENTIALS
*/
func (handler *Handler) ChangePassword(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Identity ───────────────────────────────────────────────────────
	principalID, err := requestutil.RequiredPrincipalID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Decode ─────────────────────────────────────────────────────────
	var body changePasswordRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Validate ───────────────────────────────────────────────────────
	v := &validate.Validator{}
	err = v.
		Required("current_password", body.CurrentPassword).
		Required("new_password", body.NewPassword).
		MinLen("new_password", body.NewPassword, 8).
		MaxLen("new_password", body.NewPassword, 128).
		Custom("new_password", body.NewPassword == body.CurrentPassword, "Must differ from the current password").
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Execute ────────────────────────────────────────────────────────
	err = handler.service.ChangePassword(request.Context(), principalID, body.CurrentPassword, body.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
CloseAccount handles DELETE /account.

Responses:
  - 204: Account deactivated, all sessions revoked
  - 401: MISSING_CREDENTIAL
*/
func (handler *Handler) CloseAccount(writer http.ResponseWriter, request *http.Request) {
	principalID, err := requestutil.RequiredPrincipalID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.CloseAccount(request.Context(), principalID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
