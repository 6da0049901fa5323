// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
HTTP delivery layer for the credential and session lifecycle.

It implements the gateway for the authentication lifecycle—from account
creation to session rotation, recovery, and third-party identity linking.

# Architecture

The handler acts as a thin mediation layer between the web and domain services:
  - Protocol: Standard RESTful JSON interface.
  - Security: Access tokens travel in the response body; refresh tokens only
    ever travel inside an HttpOnly cookie scoped to the auth path.
  - Verification: Enforces strict input validation before passing to [Service].

This layer is strictly responsible for transport concerns (status codes,
headers, JSON).
*/
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/constants"
	"github.com/taibuivan/veyra/internal/platform/middleware"
	requestutil "github.com/taibuivan/veyra/internal/platform/request"
	"github.com/taibuivan/veyra/internal/platform/respond"
	"github.com/taibuivan/veyra/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /register            : Creates a new account.
//   - POST /login               : Authenticates and opens a device session.
//   - POST /refresh             : Rotates the refresh token cookie.
//   - POST /identity/signin     : Third-party identity sign-in.
//   - POST /verify-email        : Consumes an email verification token.
//   - POST /forgot-password     : Issues a password reset token.
//   - POST /reset-password      : Consumes a reset token.
//   - POST /logout              : Ends the current session (auth).
//   - POST /logout-all          : Ends every session (auth).
//   - POST /change-password     : Replaces the password (auth).
//   - POST /resend-verification : Re-issues the verification token (auth).
//   - POST /identity/link       : Links a provider (auth + password).
//   - DELETE /identity/{provider} : Unlinks a provider (auth).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)
	router.Post("/identity/signin", handler.identitySignIn)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/logout-all", handler.logoutAll)
		r.Post("/change-password", handler.changePassword)
		r.Post("/resend-verification", handler.resendVerification)
		r.Post("/identity/link", handler.identityLink)
		r.Delete("/identity/{provider}", handler.identityUnlink)
	})

	return router
}

// # Request Payloads

type deviceRequest struct {
	Identifier  string `json:"identifier"`
	Fingerprint string `json:"fingerprint"`
	Platform    string `json:"platform"`
	Model       string `json:"model"`
}

func (device deviceRequest) toInput() DeviceInput {
	return DeviceInput{
		Identifier:  device.Identifier,
		Fingerprint: device.Fingerprint,
		Platform:    device.Platform,
		Model:       device.Model,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Device   deviceRequest `json:"device"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type identitySignInRequest struct {
	Provider      string        `json:"provider"`
	IdentityProof string        `json:"identity_proof"`
	Device        deviceRequest `json:"device"`
}

type identityLinkRequest struct {
	Provider      string `json:"provider"`
	IdentityProof string `json:"identity_proof"`
	Password      string `json:"password"`
}

// # Cookie Helpers

// setRefreshCookie installs the refresh token in its HttpOnly, path-scoped
// cookie. The token never appears in a response body.
func setRefreshCookie(writer http.ResponseWriter, token string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  time.Now().Add(RefreshTokenTTL),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh token cookie on the client.
func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeSession emits the standard token-issuing response: refresh cookie set,
// access token and account summary in the body.
func writeSession(writer http.ResponseWriter, result *LoginResult) {
	setRefreshCookie(writer, result.RefreshToken)
	respond.OK(writer, map[string]any{
		FieldAccessToken: result.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(AccessTokenTTL / time.Second),
		"account":        result.Account,
		"session_id":     result.SessionID,
		"device_id":      result.DeviceID,
	})
}

// # Account Lifecycle Endpoints

/*
Register handles the creation of a new account.

POST /api/v1/auth/register

Response:
  - 201: AccountSummary: Created account
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email or username already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	account, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:    input.Email,
		Username: input.Username,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, account.Summary())
}

/*
Login authenticates an account and establishes a device session.

POST /api/v1/auth/login

Description: Verifies credentials, opens (or supersedes) the device session,
and injects a secure refresh token cookie into the response.

Request:
  - Body: loginRequest (Email, Password, Device)

Response:
  - 200: Access token, account summary, session identifiers
  - 401: ErrUnauthorized: Invalid credentials, locked, or banned
  - 429: ErrRateLimited: Shared attempt budget exhausted
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)
	validator.Required(FieldDeviceID, input.Device.Identifier)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
		Device:   input.Device.toInput(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeSession(writer, result)
}

/*
Refresh rotates the session's token pair.

POST /api/v1/auth/refresh

Description: Validates the refresh token cookie, rotates it atomically, and
returns a fresh access token. A replayed token kills its session.

Response:
  - 200: New access token credentials
  - 401: ErrUnauthorized: Missing, invalid, rotated, or expired refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	result, err := handler.authService.Refresh(request.Context(), cookie.Value)
	if err != nil {
		clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	writeSession(writer, result)
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Response:
  - 204: No Content: Session terminated (idempotent)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), claims.Subject, claims.SessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
LogoutAll terminates every session of the account, on every device.

POST /api/v1/auth/logout-all

Response:
  - 204: No Content: All sessions terminated
*/
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredAccountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.LogoutAll(request.Context(), accountID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// # Recovery & Verification Endpoints

/*
ForgotPassword issues a one-time password reset token.

POST /api/v1/auth/forgot-password

Description: Always returns 202 regardless of whether the email is known, so
the endpoint cannot be used to enumerate accounts.
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusAccepted, map[string]string{
		FieldMessage: "If the email is registered, a reset link has been sent",
	})
}

/*
ResetPassword consumes a reset token and installs a new password.

POST /api/v1/auth/reset-password

Response:
  - 204: No Content: Password replaced, all sessions terminated
  - 401: ErrUnauthorized: Invalid or expired token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ChangePassword replaces the password of the authenticated account.

POST /api/v1/auth/change-password

Description: Requires the current password; all other sessions are
terminated, the calling session stays alive.
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	err = handler.authService.ChangePassword(request.Context(), claims.Subject, claims.SessionID,
		input.CurrentPassword, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
VerifyEmail confirms email ownership.

POST /api/v1/auth/verify-email

Response:
  - 204: No Content: Email marked verified
  - 401: ErrUnauthorized: Invalid or expired token
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// resendVerification re-issues the email verification token.
//
// POST /api/v1/auth/resend-verification
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredAccountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestEmailVerification(request.Context(), accountID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusAccepted, map[string]string{
		FieldMessage: "Verification email sent",
	})
}

// # Third-Party Identity Endpoints

/*
IdentitySignIn authenticates via a third-party identity proof.

POST /api/v1/auth/identity/signin

Response:
  - 200: Same shape as a password login
  - 401: ErrUnauthorized: Proof rejected or account unavailable
  - 409: EMAIL_EXISTS_PASSWORD: Email owned by a password account
*/
func (handler *Handler) identitySignIn(writer http.ResponseWriter, request *http.Request) {
	var input identitySignInRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldProvider, input.Provider)
	validator.Required(FieldIdentityProof, input.IdentityProof)
	validator.Required(FieldDeviceID, input.Device.Identifier)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.SignInWithProvider(request.Context(),
		input.Provider, input.IdentityProof, input.Device.toInput())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writeSession(writer, result)
}

/*
IdentityLink attaches a provider to the authenticated account.

POST /api/v1/auth/identity/link

Description: The account password must accompany the request; a bearer token
alone is not sufficient to attach a new way into the account.
*/
func (handler *Handler) identityLink(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredAccountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input identityLinkRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldProvider, input.Provider)
	validator.Required(FieldIdentityProof, input.IdentityProof)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.LinkProvider(request.Context(), accountID,
		input.Provider, input.IdentityProof, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// identityUnlink detaches a provider from the authenticated account.
//
// DELETE /api/v1/auth/identity/{provider}
func (handler *Handler) identityUnlink(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredAccountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	provider := chi.URLParam(request, "provider")
	if provider == "" {
		respond.Error(writer, request, validate.RequiredError(FieldProvider, "Provider is required"))
		return
	}

	if err := handler.authService.UnlinkProvider(request.Context(), accountID, provider); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
