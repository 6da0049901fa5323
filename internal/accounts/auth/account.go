// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the credential and session lifecycle engine for the
Veyra account service.

It owns every mutation of account credentials, protection state (ban, lockout,
verification), per-device sessions, and the refresh-token rotation protocol.
Collaborators (email sender, audit trail, third-party identity verifier) are
consumed through narrow interfaces and never fail an authentication operation.

# Architecture

  - Service: Orchestrates registration, login, rotation, recovery.
  - IdentityService behaviors live alongside in service_identity.go.
  - Repository: Abstracted interfaces for PostgreSQL (accounts, devices,
    sessions) and Redis (shared login-attempt counters).
  - Security: Argon2id digests and HMAC-signed token pairs via platform/sec.

This layer is the "Truth" of the system: no other component writes
passwordHash, failedLoginCount, ban state, or refreshTokenHash.
*/
package auth

import (
	"time"
)

// # Ban State

// BanKind discriminates the ban variant on an account.
type BanKind string

const (
	// BanNone means the account is not banned.
	BanNone BanKind = "none"

	// BanTemporary means the account is banned until EndsAt.
	BanTemporary BanKind = "temporary"

	// BanPermanent means all future logins are rejected regardless of
	// any other account state.
	BanPermanent BanKind = "permanent"
)

// Ban is a tagged variant rather than independently-nullable fields, so an
// illegal combination (a permanent ban with an end date, an end date with no
// ban) is unrepresentable.
type Ban struct {
	Kind   BanKind    `json:"kind"`
	Reason string     `json:"reason,omitempty"`
	EndsAt *time.Time `json:"ends_at,omitempty"`
}

// ActiveAt reports whether the ban rejects logins at the given instant.
func (ban Ban) ActiveAt(now time.Time) bool {
	switch ban.Kind {
	case BanPermanent:
		return true
	case BanTemporary:
		return ban.EndsAt != nil && now.Before(*ban.EndsAt)
	default:
		return false
	}
}

// # Domain Entities

// Account represents one registered identity.
//
// An account with no PasswordHash must hold at least one provider link —
// it was created by third-party sign-in and can only authenticate that way.
type Account struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username,omitempty"`
	PasswordHash  string `json:"-"` // Explicitly omitted from JSON for security.
	Active        bool   `json:"active"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`

	Ban Ban `json:"-"`

	// Lockout state. LockedUntil is nil when the account is not locked.
	FailedLoginCount  int        `json:"-"`
	LastFailedLoginAt *time.Time `json:"-"`
	LockedUntil       *time.Time `json:"-"`

	// One active one-time token per flow, nil/empty when none is pending.
	PasswordResetToken         string     `json:"-"`
	PasswordResetExpiresAt     *time.Time `json:"-"`
	EmailVerificationToken     string     `json:"-"`
	EmailVerificationExpiresAt *time.Time `json:"-"`

	// ProviderLinks holds at most one entry per provider.
	ProviderLinks []ProviderLink `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate by password.
func (account *Account) HasPassword() bool {
	return account.PasswordHash != ""
}

// LockedAt reports whether the account is login-locked at the given instant.
func (account *Account) LockedAt(now time.Time) bool {
	return account.LockedUntil != nil && now.Before(*account.LockedUntil)
}

// LinkFor returns the provider link for the given provider, or nil.
func (account *Account) LinkFor(provider string) *ProviderLink {
	for index := range account.ProviderLinks {
		if account.ProviderLinks[index].Provider == provider {
			return &account.ProviderLinks[index]
		}
	}
	return nil
}

// ProviderLink records one linked third-party identity.
type ProviderLink struct {
	Provider        string     `json:"provider"`
	ProviderSubject string     `json:"provider_subject"`
	ProviderEmail   string     `json:"provider_email"`
	LinkedAt        time.Time  `json:"linked_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// Device is the stable identity for one client installation or browser,
// keyed by an opaque client-supplied identifier.
type Device struct {
	ID          string    `json:"id"`
	Identifier  string    `json:"identifier"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	Model       string    `json:"model,omitempty"`
	Trusted     bool      `json:"trusted"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeviceInput is the client-supplied device description on login.
type DeviceInput struct {
	Identifier  string
	Fingerprint string
	Platform    string
	Model       string
}

// Session is one live login for an (account, device) pair.
//
// At most one active session exists per device; the refresh token hash is
// replaced atomically on every rotation so two valid hashes never coexist.
type Session struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	DeviceID         string    `json:"device_id"`
	RefreshTokenHash string    `json:"-"` // Argon2id digest of the current refresh token.
	Active           bool      `json:"active"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastLoginAt      time.Time `json:"last_login_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// # Result Shapes

// AccountSummary is the client-safe account projection returned by every
// token-issuing operation.
type AccountSummary struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
}

// Summary projects the account into its client-safe shape.
func (account *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:            account.ID,
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		PhoneVerified: account.PhoneVerified,
	}
}

// LoginResult is returned by every successful operation that issues tokens.
type LoginResult struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"-"` // Delivered via HttpOnly cookie, never in the JSON body.
	Account      AccountSummary `json:"account"`
	SessionID    string         `json:"session_id"`
	DeviceID     string         `json:"device_id"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldDeviceID        = "device_identifier"
	FieldProvider        = "provider"
	FieldIdentityProof   = "identity_proof"
	FieldMessage         = "message"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
)
