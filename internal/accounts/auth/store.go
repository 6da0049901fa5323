// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # Account Data Access

// AccountRepository defines the data access contract for accounts.
//
// Emails are normalized (lower-cased) by the service layer before any call;
// the store additionally enforces a case-insensitive unique index so races
// cannot slip a duplicate past the application check.
type AccountRepository interface {

	// FindByID returns the account with the given ID, provider links included.
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindByEmail returns the account with the given normalized email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByUsername returns the account with the given username.
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// FindByProviderSubject returns the account holding a provider link with
	// this provider and subject id.
	FindByProviderSubject(ctx context.Context, provider, subjectID string) (*Account, error)

	/*
		FindByResetToken returns the account whose pending password reset
		token matches exactly and has not expired.

		Parameters:
		  - ctx: context.Context
		  - token: string
		  - now: time.Time (expiry cutoff)

		Returns:
		  - *Account: Hydrated entity
		  - error: apperr.NotFound when no live token matches
	*/
	FindByResetToken(ctx context.Context, token string, now time.Time) (*Account, error)

	// FindByVerificationToken is the email-verification analogue of
	// [AccountRepository.FindByResetToken].
	FindByVerificationToken(ctx context.Context, token string, now time.Time) (*Account, error)

	// Create persists a brand-new account together with its provider links.
	Create(ctx context.Context, account *Account) error

	// UpdatePassword replaces only the account's password hash.
	UpdatePassword(ctx context.Context, accountID, newHash string) error

	/*
		RecordLoginFailure atomically increments the failed-login counter and,
		if the incremented value reaches threshold, sets the lock expiry.

		Description: Single-statement increment — concurrent failed logins
		cannot under-count the lockout (this is the hardening the counter
		needs; see the concurrency notes in DESIGN.md).

		Parameters:
		  - ctx: context.Context
		  - accountID: string
		  - threshold: int (failure count that triggers the lock)
		  - lockUntil: time.Time (lock expiry to set when triggered)

		Returns:
		  - int: The post-increment failure count
		  - error: Persistence failures
	*/
	RecordLoginFailure(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (int, error)

	// ResetLockout zeroes the failure counter and clears any lock.
	ResetLockout(ctx context.Context, accountID string) error

	// SetBan replaces the account's ban state.
	SetBan(ctx context.Context, accountID string, ban Ban) error

	// Deactivate sets active=false. Linkage (provider links, sessions rows)
	// is preserved; sessions are deactivated separately by the engine.
	Deactivate(ctx context.Context, accountID string) error

	// SetResetToken stores the single pending password reset token.
	SetResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error

	// ClearResetToken removes the pending password reset token.
	ClearResetToken(ctx context.Context, accountID string) error

	// SetVerificationToken stores the single pending email verification token.
	SetVerificationToken(ctx context.Context, accountID, token string, expiresAt time.Time) error

	// MarkEmailVerified sets email_verified=true and clears the pending token.
	MarkEmailVerified(ctx context.Context, accountID string) error

	/*
		AddProviderLink attaches a third-party identity to the account.

		Returns:
		  - error: apperr.Conflict when this provider is already linked
	*/
	AddProviderLink(ctx context.Context, accountID string, link ProviderLink) error

	// RemoveProviderLink detaches the given provider from the account.
	RemoveProviderLink(ctx context.Context, accountID, provider string) error

	// TouchProviderLogin updates the link's last-login timestamp.
	TouchProviderLogin(ctx context.Context, accountID, provider string, at time.Time) error
}

// # Device Data Access

// DeviceRepository defines the data access contract for client devices.
type DeviceRepository interface {

	// FindByIdentifier returns the device with the given opaque identifier.
	FindByIdentifier(ctx context.Context, identifier string) (*Device, error)

	/*
		Create persists a new device row.

		Description: The identifier carries a unique index. Callers must
		treat a unique violation as "someone else just created it",
		re-fetch, and proceed (see dberr.IsUniqueViolation).
	*/
	Create(ctx context.Context, device *Device) error

	// Touch refreshes last-seen and descriptive metadata. Last writer wins.
	Touch(ctx context.Context, deviceID string, input DeviceInput, at time.Time) error
}

// # Session Data Access

// SessionRepository defines the data access contract for device sessions.
type SessionRepository interface {

	// Create persists a new session row. The device-uniqueness invariant is
	// enforced by a partial unique index on active sessions.
	Create(ctx context.Context, session *Session) error

	// FindByID returns the session with the given ID.
	FindByID(ctx context.Context, sessionID string) (*Session, error)

	/*
		BindRefreshToken writes the first real refresh-token hash into a
		freshly created session shell.

		Description: Second half of the create-then-bind handshake — the
		session id must exist before the refresh token naming it can be
		signed, so creation uses a placeholder hash and this call replaces it.
	*/
	BindRefreshToken(ctx context.Context, sessionID, tokenHash string, expiresAt time.Time) error

	/*
		RotateRefreshToken conditionally replaces the refresh-token hash.

		Description: The overwrite happens only if the stored hash still
		equals currentHash — the single linearization point for rotation.
		Exactly one of two racing rotations can win; the loser observes
		rotated=false and must treat its token as already spent.

		Parameters:
		  - ctx: context.Context
		  - sessionID: string
		  - currentHash: string (hash read during verification)
		  - nextHash: string (hash of the newly minted token)
		  - expiresAt: time.Time (new session expiry)
		  - at: time.Time (rotation timestamp for last_login_at)

		Returns:
		  - bool: Whether this call won the overwrite
		  - error: Persistence failures
	*/
	RotateRefreshToken(ctx context.Context, sessionID, currentHash, nextHash string, expiresAt, at time.Time) (bool, error)

	// Deactivate marks the session inactive. Idempotent.
	Deactivate(ctx context.Context, sessionID string) error

	// DeactivateForDevice deactivates the device's live session, if any.
	DeactivateForDevice(ctx context.Context, deviceID string) error

	// DeactivateAllForAccount deactivates every live session of the account.
	DeactivateAllForAccount(ctx context.Context, accountID string) error

	// DeactivateOthers deactivates all of the account's live sessions except
	// the given one.
	DeactivateOthers(ctx context.Context, accountID, keepSessionID string) error

	// DeleteExpired physically removes sessions past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// # Volatile Data Access

// AttemptCounter is the shared, cross-instance login-attempt counter keyed by
// identity. It replaces in-process maps so the signal survives horizontal
// scaling; outages degrade to "no extra throttle", never to blocked logins.
type AttemptCounter interface {

	// Incr bumps the counter for the key, starting the window on first use.
	// Returns the post-increment count inside the current window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Count returns the current value without modifying it.
	Count(ctx context.Context, key string) (int64, error)

	// Reset clears the counter for the key.
	Reset(ctx context.Context, key string) error
}
