// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/veyra/internal/accounts/audit"
	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/mailer"
	"github.com/taibuivan/veyra/internal/platform/sec"
	"github.com/taibuivan/veyra/internal/platform/validate"
	"github.com/taibuivan/veyra/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for issuing and verifying token pairs.
type TokenProvider interface {
	// SignAccessToken creates a signed, short-lived access token.
	SignAccessToken(accountID, email, sessionID string, timeToLive time.Duration) (string, error)

	// SignRefreshToken creates a signed refresh token naming its session.
	SignRefreshToken(accountID, sessionID string, timeToLive time.Duration) (string, error)

	// VerifyRefreshToken checks signature, expiry, and token kind.
	VerifyRefreshToken(tokenString string) (*sec.RefreshClaims, error)
}

// CredentialHasher defines the contract for slow secret digests.
//
// Verify deliberately returns only a boolean so a caller can never branch on
// the reason a comparison failed.
type CredentialHasher interface {
	HashPassword(plainTextPassword string) (string, error)
	HashToken(token string) (string, error)
	Verify(encodedDigest, secret string) bool
}

// EmailSender delivers transactional mail. Failures are logged and never
// abort the operation that triggered the send.
type EmailSender interface {
	Send(ctx context.Context, to string, kind mailer.Kind, data map[string]string) error
}

// AuditRecorder accepts security-trail events without blocking the caller.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Service implements the credential and session lifecycle use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, lockout,
// rotation, or linking logic must be reviewed by the security team.
type Service struct {
	accounts  AccountRepository
	sessions  SessionRepository
	resolver  *DeviceResolver
	tokens    TokenProvider
	hasher    CredentialHasher
	attempts  AttemptCounter
	mail      EmailSender
	audit     AuditRecorder
	verifiers map[string]IdentityVerifier
	log       *slog.Logger
}

// NewService constructs the engine with its collaborators. The verifiers map
// is keyed by provider name; a nil map disables third-party sign-in.
func NewService(
	accounts AccountRepository,
	sessions SessionRepository,
	resolver *DeviceResolver,
	tokens TokenProvider,
	hasher CredentialHasher,
	attempts AttemptCounter,
	mail EmailSender,
	auditor AuditRecorder,
	verifiers map[string]IdentityVerifier,
	log *slog.Logger,
) *Service {
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		resolver:  resolver,
		tokens:    tokens,
		hasher:    hasher,
		attempts:  attempts,
		mail:      mail,
		audit:     auditor,
		verifiers: verifiers,
		log:       log,
	}
}

// normalizeEmail canonicalizes an email for lookup and uniqueness.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

/*
Register validates, hashes, and persists a brand new account.

Description: Email is normalized before every check so lookups and uniqueness
are case-insensitive. A verification token is issued and mailed as a
best-effort side effect; its failure never fails the registration.

Parameters:
  - ctx: context.Context
  - input: RegisterInput

Returns:
  - *Account: Created entity
  - error: Validation, Conflict (if identity exists), or storage errors
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	email := normalizeEmail(input.Email)

	validator := (&validate.Validator{}).
		Required(FieldEmail, email).
		Email(FieldEmail, email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, sec.MinPasswordLength)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Verify email uniqueness. Return a client-safe Conflict error.
	_, err := service.accounts.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Verify username uniqueness when one was supplied.
	if input.Username != "" {
		_, err = service.accounts.FindByUsername(ctx, input.Username)
		if err == nil {
			return nil, apperr.Conflict("Username is already taken")
		}
	}

	// Prevent storing plain-text passwords.
	hashedPassword, err := service.hasher.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Construct the new Account entity. Time-sortable ID to prevent PG index fragmentation.
	account := &Account{
		ID:           uuid.New(),
		Email:        email,
		Username:     input.Username,
		PasswordHash: hashedPassword,
		Active:       true,
		Ban:          Ban{Kind: BanNone},
	}

	// Persist the account to the database
	if err := service.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	// Issue and mail the verification token as a best-effort side effect
	service.issueVerificationToken(ctx, account)

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionRegister,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
	})

	return account, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email    string
	Password string
	Device   DeviceInput
}

/*
Login validates credentials and establishes a device session.

Description: Checks run in a fixed order — existence, account state (active,
ban, lock), credential presence, then password — and every failure collapses
into the same generic authentication error so callers cannot probe which
check tripped. Failed password attempts are counted atomically in the
database; crossing the threshold arms a timed lockout. Attempts against a
passwordless account are refused without counting. A shared per-identity counter additionally
throttles distributed guessing across API instances; its outage degrades to
"no extra throttle", never to blocked logins.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: Access token, session identifiers, account summary
  - error: AuthenticationFailed, RateLimited, or internal failures
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)
	now := time.Now()

	if throttled := service.throttled(ctx, email); throttled {
		return nil, apperr.RateLimited(int(AttemptWindow.Seconds()))
	}

	account, err := service.accounts.FindByEmail(ctx, email)
	if err != nil {
		service.noteAttempt(ctx, email)
		service.recordAuthDenied(ctx, audit.ActionLogin, "", "unknown_email")
		return nil, apperr.AuthenticationFailed()
	}

	if denied := service.accountDenied(account, now); denied != "" {
		service.noteAttempt(ctx, email)
		service.recordAuthDenied(ctx, audit.ActionLogin, account.ID, denied)
		return nil, apperr.AuthenticationFailed()
	}

	// A passwordless account has no credential to get wrong: same generic
	// refusal, but no failure count — its owner must not be lockable by
	// guesses against a password that does not exist.
	if !account.HasPassword() {
		service.noteAttempt(ctx, email)
		service.recordAuthDenied(ctx, audit.ActionLogin, account.ID, "passwordless_account")
		return nil, apperr.AuthenticationFailed()
	}

	if !service.hasher.Verify(account.PasswordHash, input.Password) {
		service.noteAttempt(ctx, email)
		service.registerPasswordFailure(ctx, account)
		return nil, apperr.AuthenticationFailed()
	}

	// Successful authentication clears both protection counters.
	if account.FailedLoginCount > 0 || account.LockedUntil != nil {
		if err := service.accounts.ResetLockout(ctx, account.ID); err != nil {
			return nil, err
		}
	}
	if err := service.attempts.Reset(ctx, email); err != nil {
		service.log.WarnContext(ctx, "attempt_counter_reset_failed", slog.String("error", err.Error()))
	}

	result, err := service.establishSession(ctx, account, input.Device)
	if err != nil {
		return nil, err
	}

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionLogin,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
		Metadata: map[string]string{
			"session_id": result.SessionID,
			"device_id":  result.DeviceID,
		},
	})

	return result, nil
}

// accountDenied returns a non-empty audit reason when account state forbids
// authentication at the given instant.
func (service *Service) accountDenied(account *Account, now time.Time) string {
	switch {
	case !account.Active:
		return "inactive"
	case account.Ban.ActiveAt(now):
		return "banned"
	case account.LockedAt(now):
		return "locked"
	default:
		return ""
	}
}

// registerPasswordFailure counts a wrong password atomically and audits a
// lockout when the increment crossed the threshold.
func (service *Service) registerPasswordFailure(ctx context.Context, account *Account) {
	count, err := service.accounts.RecordLoginFailure(ctx, account.ID, MaxFailedLogins, time.Now().Add(LockoutDuration))
	if err != nil {
		service.log.ErrorContext(ctx, "login_failure_record_failed",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	service.recordAuthDenied(ctx, audit.ActionLogin, account.ID, "wrong_password")

	if count == MaxFailedLogins {
		service.audit.Record(ctx, audit.Event{
			Action:  audit.ActionLockout,
			Outcome: audit.OutcomeDenied,
			ActorID: account.ID,
		})
	}
}

// throttled reports whether the shared per-identity counter is over budget.
// Counter outages are logged and treated as "not throttled".
func (service *Service) throttled(ctx context.Context, email string) bool {
	count, err := service.attempts.Count(ctx, email)
	if err != nil {
		service.log.WarnContext(ctx, "attempt_counter_read_failed", slog.String("error", err.Error()))
		return false
	}
	return count >= MaxAttemptsPerWindow
}

// noteAttempt bumps the shared per-identity counter. Soft-fail.
func (service *Service) noteAttempt(ctx context.Context, email string) {
	if _, err := service.attempts.Incr(ctx, email, AttemptWindow); err != nil {
		service.log.WarnContext(ctx, "attempt_counter_incr_failed", slog.String("error", err.Error()))
	}
}

// recordAuthDenied emits a denied audit event with the internal reason.
func (service *Service) recordAuthDenied(ctx context.Context, action audit.Action, actorID, reason string) {
	service.audit.Record(ctx, audit.Event{
		Action:   action,
		Outcome:  audit.OutcomeDenied,
		ActorID:  actorID,
		Metadata: map[string]string{"reason": reason},
	})
}

/*
establishSession resolves the device and opens a fresh session on it.

Description: Two-phase handshake. The refresh token must name its session id,
so the session row is created first with a single-use placeholder digest, the
pair is signed, and the real digest then replaces the placeholder. Any
previously active session on the device is deactivated first — one device,
one session.

Parameters:
  - ctx: context.Context
  - account: *Account (already authenticated)
  - deviceInput: DeviceInput

Returns:
  - *LoginResult: Transport-ready session identifiers
  - error: Device or session persistence failures
*/
func (service *Service) establishSession(ctx context.Context, account *Account, deviceInput DeviceInput) (*LoginResult, error) {
	device, err := service.resolver.Resolve(ctx, deviceInput)
	if err != nil {
		return nil, err
	}

	// One active session per device: supersede whatever was there.
	if err := service.sessions.DeactivateForDevice(ctx, device.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:               uuid.New(),
		AccountID:        account.ID,
		DeviceID:         device.ID,
		RefreshTokenHash: sessionPlaceholderHash,
		Active:           true,
		ExpiresAt:        now.Add(RefreshTokenTTL),
		LastLoginAt:      now,
		CreatedAt:        now,
	}
	if err := service.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	accessToken, err := service.tokens.SignAccessToken(account.ID, account.Email, session.ID, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	refreshToken, err := service.tokens.SignRefreshToken(account.ID, session.ID, RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	refreshHash, err := service.hasher.HashToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_hash_failed: %w", err)
	}

	if err := service.sessions.BindRefreshToken(ctx, session.ID, refreshHash, session.ExpiresAt); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      account.Summary(),
		SessionID:    session.ID,
		DeviceID:     device.ID,
	}, nil
}

// sessionPlaceholderHash occupies the digest column between session creation
// and the first token bind. It is not a valid encoded digest, so Verify can
// never match it.
const sessionPlaceholderHash = "pending"

// # Session Rotation

/*
Refresh implements the refresh-token rotation protocol.

Description: The presented token is checked in strict order — signature and
expiry, session existence, session liveness, digest match, account state —
and only then rotated. A digest mismatch on a live session means a previously
rotated token is being replayed: the session is killed on the spot and the
event audited, because either the client leaked its token or an attacker is
holding a stale copy. Losing the conditional rotate race is different — the
concurrent winner holds the only valid token and the session stays alive.

Parameters:
  - ctx: context.Context
  - refreshToken: string

Returns:
  - *LoginResult: Fresh token pair bound to the same session
  - error: AuthenticationFailed or storage failures
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := service.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		service.recordAuthDenied(ctx, audit.ActionRefresh, "", "bad_token")
		return nil, apperr.AuthenticationFailed()
	}

	session, err := service.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			service.recordAuthDenied(ctx, audit.ActionRefresh, claims.Subject, "unknown_session")
			return nil, apperr.AuthenticationFailed()
		}
		return nil, err
	}

	now := time.Now()
	if !session.Active || !now.Before(session.ExpiresAt) {
		service.recordAuthDenied(ctx, audit.ActionRefresh, session.AccountID, "dead_session")
		return nil, apperr.AuthenticationFailed()
	}

	// Live session, but the digest does not match the presented token:
	// this token was already rotated away. Trip the reuse wire.
	if !service.hasher.Verify(session.RefreshTokenHash, refreshToken) {
		if err := service.sessions.Deactivate(ctx, session.ID); err != nil {
			return nil, err
		}
		service.audit.Record(ctx, audit.Event{
			Action:  audit.ActionRefreshReuse,
			Outcome: audit.OutcomeDenied,
			ActorID: session.AccountID,
			Metadata: map[string]string{
				"session_id": session.ID,
				"device_id":  session.DeviceID,
			},
		})
		return nil, apperr.AuthenticationFailed()
	}

	account, err := service.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		if apperr.IsNotFound(err) {
			service.recordAuthDenied(ctx, audit.ActionRefresh, session.AccountID, "unknown_account")
			return nil, apperr.AuthenticationFailed()
		}
		return nil, err
	}
	if denied := service.accountDenied(account, now); denied != "" {
		service.recordAuthDenied(ctx, audit.ActionRefresh, account.ID, denied)
		return nil, apperr.AuthenticationFailed()
	}

	accessToken, err := service.tokens.SignAccessToken(account.ID, account.Email, session.ID, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	nextRefreshToken, err := service.tokens.SignRefreshToken(account.ID, session.ID, RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_sign_failed: %w", err)
	}

	nextHash, err := service.hasher.HashToken(nextRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_hash_failed: %w", err)
	}

	rotated, err := service.sessions.RotateRefreshToken(ctx, session.ID, session.RefreshTokenHash, nextHash, now.Add(RefreshTokenTTL), now)
	if err != nil {
		return nil, err
	}

	// Lost the rotation race. The concurrent winner's token is the live one;
	// the session stays valid for it, and this caller's token is spent.
	if !rotated {
		service.recordAuthDenied(ctx, audit.ActionRefresh, account.ID, "rotation_race_lost")
		return nil, apperr.AuthenticationFailed()
	}

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionRefresh,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
		Metadata: map[string]string{
			"session_id": session.ID,
			"device_id":  session.DeviceID,
		},
	})

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: nextRefreshToken,
		Account:      account.Summary(),
		SessionID:    session.ID,
		DeviceID:     session.DeviceID,
	}, nil
}

// # Session Termination

// Logout deactivates the given session. Logging out an already-dead or
// unknown session succeeds silently (idempotent operation).
func (service *Service) Logout(ctx context.Context, accountID, sessionID string) error {
	session, err := service.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}

	// Sessions can only be ended by their owner.
	if session.AccountID != accountID {
		return apperr.Forbidden("Session does not belong to this account")
	}

	if err := service.sessions.Deactivate(ctx, session.ID); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Event{
		Action:   audit.ActionLogout,
		Outcome:  audit.OutcomeSuccess,
		ActorID:  accountID,
		Metadata: map[string]string{"session_id": session.ID},
	})

	return nil
}

// LogoutAll deactivates every live session of the account, on every device.
func (service *Service) LogoutAll(ctx context.Context, accountID string) error {
	if err := service.sessions.DeactivateAllForAccount(ctx, accountID); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Event{
		Action:   audit.ActionSessionDeactivated,
		Outcome:  audit.OutcomeSuccess,
		ActorID:  accountID,
		Metadata: map[string]string{"scope": "all_devices"},
	})

	return nil
}

// SweepExpiredSessions removes sessions past their expiry. Run periodically
// by the background sweeper in cmd/api.
func (service *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := service.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		service.log.InfoContext(ctx, "expired_sessions_swept", slog.Int64("removed", removed))
	}

	return removed, nil
}

// # Password Recovery Flow

/*
RequestPasswordReset issues a one-time reset token for the email's account.

Description: Always succeeds from the caller's perspective — an unknown email
and a passwordless account both produce the same nil response as a known
password account, so the endpoint cannot be used to enumerate accounts or
probe authentication methods. Only password accounts actually get a token
stored and mailed. Issuing a new token replaces any pending one; only the
latest token is live.

Parameters:
  - ctx: context.Context
  - email: string

Returns:
  - error: Internal failures only, never "account not found"
*/
func (service *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	account, err := service.accounts.FindByEmail(ctx, email)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}

	// Provider-born accounts have no password to reset. Stay silent so the
	// response is indistinguishable from the unknown-email case, and store
	// nothing: a reset token here would let a mailbox holder install a
	// password on an account that never had one.
	if !account.HasPassword() {
		return nil
	}

	token, err := GenerateOneTimeToken()
	if err != nil {
		return fmt.Errorf("auth_service_reset_token_failed: %w", err)
	}

	if err := service.accounts.SetResetToken(ctx, account.ID, token, time.Now().Add(ResetTokenTTL)); err != nil {
		return err
	}

	service.sendMail(ctx, account.Email, mailer.KindPasswordReset, map[string]string{
		"token": token,
		"ttl":   ResetTokenTTL.String(),
	})

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionPasswordReset,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
		Metadata: map[string]string{
			"phase": "requested",
		},
	})

	return nil
}

/*
ResetPassword consumes a reset token and installs a new password.

Description: The token is matched exactly against its stored value with the
expiry enforced in the same query; there is nothing to probe. Consuming the
token clears it, resets the lockout counters (the owner has proven control of
the mailbox), and deactivates every session so any stolen refresh token dies
with the old password.

Parameters:
  - ctx: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Validation, Unauthorized (bad or expired token), or storage failures
*/
func (service *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	validator := (&validate.Validator{}).
		Required(FieldToken, token).
		Required(FieldNewPassword, newPassword).
		MinLen(FieldNewPassword, newPassword, sec.MinPasswordLength)
	if err := validator.Err(); err != nil {
		return err
	}

	account, err := service.accounts.FindByResetToken(ctx, token, time.Now())
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Unauthorized("Reset token is invalid or expired")
		}
		return err
	}

	hashedPassword, err := service.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_hash_failed: %w", err)
	}

	if err := service.accounts.UpdatePassword(ctx, account.ID, hashedPassword); err != nil {
		return err
	}
	if err := service.accounts.ClearResetToken(ctx, account.ID); err != nil {
		return err
	}
	if err := service.accounts.ResetLockout(ctx, account.ID); err != nil {
		return err
	}

	// Every session dies with the old password.
	if err := service.sessions.DeactivateAllForAccount(ctx, account.ID); err != nil {
		return err
	}

	service.sendMail(ctx, account.Email, mailer.KindPasswordChanged, nil)

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionPasswordReset,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
		Metadata: map[string]string{
			"phase": "completed",
		},
	})

	return nil
}

/*
ChangePassword replaces the password of an authenticated account.

Description: Requires the current password even on an authenticated call, so
a hijacked access token alone cannot take over the account. All other
sessions are deactivated; the session performing the change stays alive.

Parameters:
  - ctx: context.Context
  - accountID: string (from the verified access token)
  - sessionID: string (the caller's session, kept alive)
  - currentPassword: string
  - newPassword: string

Returns:
  - error: Validation, AuthenticationFailed, or storage failures
*/
func (service *Service) ChangePassword(ctx context.Context, accountID, sessionID, currentPassword, newPassword string) error {
	validator := (&validate.Validator{}).
		Required(FieldCurrentPassword, currentPassword).
		Required(FieldNewPassword, newPassword).
		MinLen(FieldNewPassword, newPassword, sec.MinPasswordLength)
	if err := validator.Err(); err != nil {
		return err
	}

	account, err := service.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !account.HasPassword() || !service.hasher.Verify(account.PasswordHash, currentPassword) {
		service.recordAuthDenied(ctx, audit.ActionPasswordChange, account.ID, "wrong_password")
		return apperr.AuthenticationFailed()
	}

	hashedPassword, err := service.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_hash_failed: %w", err)
	}

	if err := service.accounts.UpdatePassword(ctx, account.ID, hashedPassword); err != nil {
		return err
	}

	if err := service.sessions.DeactivateOthers(ctx, account.ID, sessionID); err != nil {
		return err
	}

	service.sendMail(ctx, account.Email, mailer.KindPasswordChanged, nil)

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionPasswordChange,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
	})

	return nil
}

// # Email Verification Flow

// RequestEmailVerification issues a fresh verification token for the account
// and mails it. Requesting verification for an already-verified email is a
// Conflict.
func (service *Service) RequestEmailVerification(ctx context.Context, accountID string) error {
	account, err := service.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if account.EmailVerified {
		return apperr.Conflict("Email is already verified")
	}

	service.issueVerificationToken(ctx, account)
	return nil
}

/*
VerifyEmail consumes a verification token and marks the email verified.

Parameters:
  - ctx: context.Context
  - token: string

Returns:
  - error: Unauthorized (bad or expired token) or storage failures
*/
func (service *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return validate.RequiredError(FieldToken, "Verification token is required")
	}

	account, err := service.accounts.FindByVerificationToken(ctx, token, time.Now())
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Unauthorized("Verification token is invalid or expired")
		}
		return err
	}

	if err := service.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionEmailVerification,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
	})

	return nil
}

// issueVerificationToken generates, stores, and mails a verification token.
// Best-effort: failures are logged, never returned.
func (service *Service) issueVerificationToken(ctx context.Context, account *Account) {
	token, err := GenerateOneTimeToken()
	if err != nil {
		service.log.ErrorContext(ctx, "verification_token_generate_failed", slog.String("error", err.Error()))
		return
	}

	if err := service.accounts.SetVerificationToken(ctx, account.ID, token, time.Now().Add(VerificationTokenTTL)); err != nil {
		service.log.ErrorContext(ctx, "verification_token_store_failed",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	service.sendMail(ctx, account.Email, mailer.KindEmailVerification, map[string]string{
		"token": token,
		"ttl":   VerificationTokenTTL.String(),
	})
}

// GenerateOneTimeToken mints a URL-safe random token for the reset and
// verification flows.
func GenerateOneTimeToken() (string, error) {
	return sec.GenerateSecureToken(OneTimeTokenLength)
}

// sendMail delivers a transactional email. Soft-fail: delivery problems are
// logged and never abort the triggering operation.
func (service *Service) sendMail(ctx context.Context, to string, kind mailer.Kind, data map[string]string) {
	if service.mail == nil {
		return
	}
	if err := service.mail.Send(ctx, to, kind, data); err != nil {
		service.log.ErrorContext(ctx, "email_send_failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}
