// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the duration an access token remains valid.
	// We keep it short (15m) to minimize the impact of a leaked token.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the duration a session/refresh token remains valid.
	// Each rotation extends the session by this much.
	RefreshTokenTTL = 7 * 24 * time.Hour

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// VerificationTokenTTL is the duration an email verification token remains
	// valid. Long-lived (24 hours) as users might not check email immediately.
	VerificationTokenTTL = 24 * time.Hour

	// OneTimeTokenLength is the byte length of random one-time tokens
	// (password reset, email verification).
	OneTimeTokenLength = 32
)

// # Account Protection

const (
	// MaxFailedLogins is the consecutive-failure count that locks an account.
	MaxFailedLogins = 5

	// LockoutDuration is how long a lockout lasts once triggered.
	LockoutDuration = 30 * time.Minute

	// AttemptWindow is the sliding window for the shared per-identity
	// attempt counter (Redis). This signal is cross-instance: it holds even
	// when multiple replicas serve the same account.
	AttemptWindow = 15 * time.Minute

	// MaxAttemptsPerWindow is the per-identity attempt ceiling inside
	// AttemptWindow before logins are refused outright.
	MaxAttemptsPerWindow = 20
)
