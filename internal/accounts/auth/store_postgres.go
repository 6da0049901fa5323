// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Account storage (Postgres).

# Architecture

Repositories in this file are strictly separated from domain logic. They
implement the domain-defined interfaces ([AccountRepository],
[DeviceRepository], [SessionRepository]) using the [pgxpool.Pool]
connection manager.

# Schema Table Mapping
  - accounts.account: Master identity, credential, and protection state.
  - accounts.providerlink: Linked third-party identities, one row per provider.
  - accounts.device: Stable client installations keyed by opaque identifier.
  - accounts.session: Per-device login sessions and refresh-token digests.

# Error Mapping

Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
[apperr.AppError] types to avoid leaking storage implementation details.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/dberr"
)

// # Repository Implementations

// PostgresAccountRepository implements [AccountRepository] using pgx.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new Postgres implementation for account state.
func NewAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// PostgresDeviceRepository implements [DeviceRepository] using pgx.
type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new Postgres implementation for device identity.
func NewDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

// PostgresSessionRepository implements [SessionRepository] using pgx.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new Postgres implementation for device sessions.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// # AccountRepository Methods

const accountColumns = `
	id, email, username, passwordhash, active, emailverified, phoneverified,
	bankind, banreason, banendsat,
	failedlogincount, lastfailedloginat, lockeduntil,
	passwordresettoken, passwordresetexpiresat,
	emailverificationtoken, emailverificationexpiresat,
	createdat, updatedat`

// scanAccount hydrates one account row in accountColumns order.
func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.PasswordHash,
		&account.Active,
		&account.EmailVerified,
		&account.PhoneVerified,
		&account.Ban.Kind,
		&account.Ban.Reason,
		&account.Ban.EndsAt,
		&account.FailedLoginCount,
		&account.LastFailedLoginAt,
		&account.LockedUntil,
		&account.PasswordResetToken,
		&account.PasswordResetExpiresAt,
		&account.EmailVerificationToken,
		&account.EmailVerificationExpiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// loadProviderLinks attaches the account's provider links, ordered by link age.
func (repository *PostgresAccountRepository) loadProviderLinks(ctx context.Context, account *Account) error {
	const query = `
		SELECT provider, subjectid, email, linkedat, lastloginat
		FROM accounts.providerlink
		WHERE accountid = $1
		ORDER BY linkedat ASC`

	rows, err := repository.pool.Query(ctx, query, account.ID)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_load_links_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link ProviderLink
		if err := rows.Scan(&link.Provider, &link.ProviderSubject, &link.ProviderEmail, &link.LinkedAt, &link.LastLoginAt); err != nil {
			return fmt.Errorf("postgres_account_repo_scan_link_failed: %w", err)
		}
		account.ProviderLinks = append(account.ProviderLinks, link)
	}

	return rows.Err()
}

// findOne runs a single-row account lookup and hydrates provider links.
func (repository *PostgresAccountRepository) findOne(ctx context.Context, query string, args ...any) (*Account, error) {
	account, err := scanAccount(repository.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_failed: %w", err)
	}

	if err := repository.loadProviderLinks(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

/*
FindByID retrieves an account record by primary key.

Parameters:
  - ctx: context.Context
  - id: string (UUID)

Returns:
  - *Account: Hydrated entity, provider links included
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresAccountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts.account WHERE id = $1`, accountColumns)
	return repository.findOne(ctx, query, id)
}

// FindByEmail retrieves an account record by its normalized email address.
//
// # Returns
//
// Returns [*Account] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts.account WHERE email = $1`, accountColumns)
	return repository.findOne(ctx, query, email)
}

// FindByUsername retrieves an account record by its unique username.
func (repository *PostgresAccountRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts.account WHERE username = $1`, accountColumns)
	return repository.findOne(ctx, query, username)
}

/*
FindByProviderSubject retrieves the account holding a given third-party link.

Description: Joins through accounts.providerlink on the (provider, subjectid)
unique pair, so at most one account can ever match.

Parameters:
  - ctx: context.Context
  - provider: string (e.g. "google")
  - subjectID: string (provider-issued stable subject)

Returns:
  - *Account: Hydrated entity
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresAccountRepository) FindByProviderSubject(ctx context.Context, provider, subjectID string) (*Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts.account
		WHERE id = (
			SELECT accountid FROM accounts.providerlink
			WHERE provider = $1 AND subjectid = $2
		)`, accountColumns)
	return repository.findOne(ctx, query, provider, subjectID)
}

// FindByResetToken retrieves the account holding this exact, unexpired
// password reset token.
func (repository *PostgresAccountRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts.account
		WHERE passwordresettoken = $1 AND passwordresettoken <> ''
		  AND passwordresetexpiresat > $2`, accountColumns)
	return repository.findOne(ctx, query, token, now)
}

// FindByVerificationToken retrieves the account holding this exact, unexpired
// email verification token.
func (repository *PostgresAccountRepository) FindByVerificationToken(ctx context.Context, token string, now time.Time) (*Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts.account
		WHERE emailverificationtoken = $1 AND emailverificationtoken <> ''
		  AND emailverificationexpiresat > $2`, accountColumns)
	return repository.findOne(ctx, query, token, now)
}

/*
Create persists a new account together with its provider links.

Description: Runs in a single transaction so a partially-linked account can
never be observed. Unique violations (duplicate email, username, or provider
subject) surface as [apperr.Conflict].

Parameters:
  - ctx: context.Context
  - account: *Account (Entity to persist, timestamps initialized if zero)

Returns:
  - error: apperr.Conflict or database execution failure
*/
func (repository *PostgresAccountRepository) Create(ctx context.Context, account *Account) error {
	const insertAccount = `
		INSERT INTO accounts.account (
			id, email, username, passwordhash, active, emailverified, phoneverified,
			bankind, banreason, banendsat,
			failedlogincount, lastfailedloginat, lockeduntil,
			passwordresettoken, passwordresetexpiresat,
			emailverificationtoken, emailverificationexpiresat,
			createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	const insertLink = `
		INSERT INTO accounts.providerlink (accountid, provider, subjectid, email, linkedat, lastloginat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.Ban.Kind == "" {
		account.Ban.Kind = BanNone
	}

	transaction, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_create_begin_failed: %w", err)
	}
	defer transaction.Rollback(ctx)

	_, err = transaction.Exec(ctx, insertAccount,
		account.ID,
		account.Email,
		account.Username,
		account.PasswordHash,
		account.Active,
		account.EmailVerified,
		account.PhoneVerified,
		account.Ban.Kind,
		account.Ban.Reason,
		account.Ban.EndsAt,
		account.FailedLoginCount,
		account.LastFailedLoginAt,
		account.LockedUntil,
		account.PasswordResetToken,
		account.PasswordResetExpiresAt,
		account.EmailVerificationToken,
		account.EmailVerificationExpiresAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "An account with this email or username already exists")
	}

	for _, link := range account.ProviderLinks {
		_, err = transaction.Exec(ctx, insertLink,
			account.ID, link.Provider, link.ProviderSubject, link.ProviderEmail, link.LinkedAt, link.LastLoginAt)
		if err != nil {
			return dberr.Wrap(err, "This third-party identity is already linked to an account")
		}
	}

	if err := transaction.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_account_repo_create_commit_failed: %w", err)
	}

	return nil
}

// UpdatePassword replaces only the password hash and refreshes updatedat.
func (repository *PostgresAccountRepository) UpdatePassword(ctx context.Context, accountID, newHash string) error {
	const query = `
		UPDATE accounts.account
		SET passwordhash = $2, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID, newHash)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_update_password_failed: %w", err)
	}

	return nil
}

/*
RecordLoginFailure atomically increments the failed-login counter.

Description: A single UPDATE increments the counter, stamps the failure time,
and — only when the incremented value reaches the threshold — sets the lock
expiry, all in one statement. Concurrent failed logins each see their own
post-increment value, so the lockout cannot be under-counted by a
read-modify-write race.

Parameters:
  - ctx: context.Context
  - accountID: string
  - threshold: int
  - lockUntil: time.Time

Returns:
  - int: Post-increment failure count
  - error: Database execution failure
*/
func (repository *PostgresAccountRepository) RecordLoginFailure(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (int, error) {
	const query = `
		UPDATE accounts.account
		SET failedlogincount = failedlogincount + 1,
		    lastfailedloginat = NOW(),
		    lockeduntil = CASE
		        WHEN failedlogincount + 1 >= $2 THEN $3
		        ELSE lockeduntil
		    END,
		    updatedat = NOW()
		WHERE id = $1
		RETURNING failedlogincount`

	var count int
	err := repository.pool.QueryRow(ctx, query, accountID, threshold, lockUntil).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres_account_repo_record_failure_failed: %w", err)
	}

	return count, nil
}

// ResetLockout zeroes the failure counter and clears any lock expiry.
func (repository *PostgresAccountRepository) ResetLockout(ctx context.Context, accountID string) error {
	const query = `
		UPDATE accounts.account
		SET failedlogincount = 0, lockeduntil = NULL, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_reset_lockout_failed: %w", err)
	}

	return nil
}

// SetBan replaces the account's ban variant.
func (repository *PostgresAccountRepository) SetBan(ctx context.Context, accountID string, ban Ban) error {
	const query = `
		UPDATE accounts.account
		SET bankind = $2, banreason = $3, banendsat = $4, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID, ban.Kind, ban.Reason, ban.EndsAt)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_set_ban_failed: %w", err)
	}

	return nil
}

// Deactivate flags the account as inactive without erasing any linkage.
func (repository *PostgresAccountRepository) Deactivate(ctx context.Context, accountID string) error {
	const query = `UPDATE accounts.account SET active = FALSE, updatedat = NOW() WHERE id = $1`
	_, err := repository.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_deactivate_failed: %w", err)
	}
	return nil
}

// SetResetToken stores the single pending password reset token, replacing any
// previous one.
func (repository *PostgresAccountRepository) SetResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	const query = `
		UPDATE accounts.account
		SET passwordresettoken = $2, passwordresetexpiresat = $3, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_set_reset_token_failed: %w", err)
	}

	return nil
}

// ClearResetToken removes the pending password reset token.
func (repository *PostgresAccountRepository) ClearResetToken(ctx context.Context, accountID string) error {
	const query = `
		UPDATE accounts.account
		SET passwordresettoken = '', passwordresetexpiresat = NULL, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_clear_reset_token_failed: %w", err)
	}

	return nil
}

// SetVerificationToken stores the single pending email verification token,
// replacing any previous one.
func (repository *PostgresAccountRepository) SetVerificationToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	const query = `
		UPDATE accounts.account
		SET emailverificationtoken = $2, emailverificationexpiresat = $3, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_set_verification_token_failed: %w", err)
	}

	return nil
}

// MarkEmailVerified flips the verification flag and consumes the pending token.
func (repository *PostgresAccountRepository) MarkEmailVerified(ctx context.Context, accountID string) error {
	const query = `
		UPDATE accounts.account
		SET emailverified = TRUE,
		    emailverificationtoken = '',
		    emailverificationexpiresat = NULL,
		    updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_mark_verified_failed: %w", err)
	}

	return nil
}

/*
AddProviderLink attaches a third-party identity to the account.

Description: The (accountid, provider) primary key enforces at most one link
per provider per account; the (provider, subjectid) unique index enforces
that one third-party identity belongs to at most one account.

Returns:
  - error: apperr.Conflict on either uniqueness violation
*/
func (repository *PostgresAccountRepository) AddProviderLink(ctx context.Context, accountID string, link ProviderLink) error {
	const query = `
		INSERT INTO accounts.providerlink (accountid, provider, subjectid, email, linkedat, lastloginat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := repository.pool.Exec(ctx, query,
		accountID, link.Provider, link.ProviderSubject, link.ProviderEmail, link.LinkedAt, link.LastLoginAt)
	if err != nil {
		return dberr.Wrap(err, "This third-party identity is already linked")
	}

	return nil
}

// RemoveProviderLink detaches the given provider from the account. Detaching
// a provider that was never linked is a no-op.
func (repository *PostgresAccountRepository) RemoveProviderLink(ctx context.Context, accountID, provider string) error {
	const query = `DELETE FROM accounts.providerlink WHERE accountid = $1 AND provider = $2`
	_, err := repository.pool.Exec(ctx, query, accountID, provider)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_remove_link_failed: %w", err)
	}
	return nil
}

// TouchProviderLogin stamps the link's last third-party sign-in time.
func (repository *PostgresAccountRepository) TouchProviderLogin(ctx context.Context, accountID, provider string, at time.Time) error {
	const query = `
		UPDATE accounts.providerlink
		SET lastloginat = $3
		WHERE accountid = $1 AND provider = $2`

	_, err := repository.pool.Exec(ctx, query, accountID, provider, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_touch_link_failed: %w", err)
	}

	return nil
}

// # DeviceRepository Methods

const deviceColumns = `id, identifier, fingerprint, platform, model, trusted, lastseenat, createdat`

// FindByIdentifier retrieves a device by its opaque client identifier.
func (repository *PostgresDeviceRepository) FindByIdentifier(ctx context.Context, identifier string) (*Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts.device WHERE identifier = $1`, deviceColumns)

	device := &Device{}
	err := repository.pool.QueryRow(ctx, query, identifier).Scan(
		&device.ID,
		&device.Identifier,
		&device.Fingerprint,
		&device.Platform,
		&device.Model,
		&device.Trusted,
		&device.LastSeenAt,
		&device.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Device")
		}
		return nil, fmt.Errorf("postgres_device_repo_find_failed: %w", err)
	}

	return device, nil
}

/*
Create persists a new device row.

Description: The identifier column carries a unique index. Two clients
presenting the same identifier at the same moment race here; the loser
receives a unique violation and must re-fetch (see [dberr.IsUniqueViolation]).

Parameters:
  - ctx: context.Context
  - device: *Device

Returns:
  - error: Unique violation or database execution failure
*/
func (repository *PostgresDeviceRepository) Create(ctx context.Context, device *Device) error {
	const query = `
		INSERT INTO accounts.device (id, identifier, fingerprint, platform, model, trusted, lastseenat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.LastSeenAt.IsZero() {
		device.LastSeenAt = now
	}

	_, err := repository.pool.Exec(ctx, query,
		device.ID,
		device.Identifier,
		device.Fingerprint,
		device.Platform,
		device.Model,
		device.Trusted,
		device.LastSeenAt,
		device.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_device_repo_create_failed: %w", err)
	}

	return nil
}

// Touch refreshes last-seen and descriptive metadata. Concurrent touches may
// interleave; last writer wins and nothing downstream depends on the order.
func (repository *PostgresDeviceRepository) Touch(ctx context.Context, deviceID string, input DeviceInput, at time.Time) error {
	const query = `
		UPDATE accounts.device
		SET fingerprint = $2, platform = $3, model = $4, lastseenat = $5
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, deviceID, input.Fingerprint, input.Platform, input.Model, at)
	if err != nil {
		return fmt.Errorf("postgres_device_repo_touch_failed: %w", err)
	}

	return nil
}

// # SessionRepository Methods

const sessionColumns = `id, accountid, deviceid, refreshtokenhash, active, expiresat, lastloginat, createdat`

// Create persists a new session shell. The partial unique index on active
// sessions per device rejects a second concurrent login on the same device.
func (repository *PostgresSessionRepository) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO accounts.session (id, accountid, deviceid, refreshtokenhash, active, expiresat, lastloginat, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(ctx, query,
		session.ID,
		session.AccountID,
		session.DeviceID,
		session.RefreshTokenHash,
		session.Active,
		session.ExpiresAt,
		session.LastLoginAt,
		session.CreatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "An active session already exists for this device")
	}

	return nil
}

// FindByID retrieves a session by primary key.
func (repository *PostgresSessionRepository) FindByID(ctx context.Context, sessionID string) (*Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts.session WHERE id = $1`, sessionColumns)

	session := &Session{}
	err := repository.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.AccountID,
		&session.DeviceID,
		&session.RefreshTokenHash,
		&session.Active,
		&session.ExpiresAt,
		&session.LastLoginAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// BindRefreshToken writes the first refresh-token digest into a freshly
// created session shell.
func (repository *PostgresSessionRepository) BindRefreshToken(ctx context.Context, sessionID, tokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE accounts.session
		SET refreshtokenhash = $2, expiresat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, sessionID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_bind_token_failed: %w", err)
	}

	return nil
}

/*
RotateRefreshToken conditionally replaces the session's refresh-token digest.

Description: The WHERE clause pins the stored digest to the value read during
verification, making the UPDATE the single linearization point for rotation.
When two holders of the same token race, Postgres serializes the row writes
and exactly one statement matches; the other returns zero rows and reports
rotated=false.

Parameters:
  - ctx: context.Context
  - sessionID: string
  - currentHash: string (digest read during verification)
  - nextHash: string (digest of the newly minted token)
  - expiresAt: time.Time
  - at: time.Time

Returns:
  - bool: Whether this call won the overwrite
  - error: Database execution failure
*/
func (repository *PostgresSessionRepository) RotateRefreshToken(ctx context.Context, sessionID, currentHash, nextHash string, expiresAt, at time.Time) (bool, error) {
	const query = `
		UPDATE accounts.session
		SET refreshtokenhash = $3, expiresat = $4, lastloginat = $5
		WHERE id = $1 AND active = TRUE AND refreshtokenhash = $2`

	tag, err := repository.pool.Exec(ctx, query, sessionID, currentHash, nextHash, expiresAt, at)
	if err != nil {
		return false, fmt.Errorf("postgres_session_repo_rotate_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Deactivate marks the session inactive. Idempotent.
func (repository *PostgresSessionRepository) Deactivate(ctx context.Context, sessionID string) error {
	const query = `UPDATE accounts.session SET active = FALSE WHERE id = $1`
	_, err := repository.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_deactivate_failed: %w", err)
	}
	return nil
}

// DeactivateForDevice deactivates the device's live session, if any.
func (repository *PostgresSessionRepository) DeactivateForDevice(ctx context.Context, deviceID string) error {
	const query = `UPDATE accounts.session SET active = FALSE WHERE deviceid = $1 AND active = TRUE`
	_, err := repository.pool.Exec(ctx, query, deviceID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_deactivate_device_failed: %w", err)
	}
	return nil
}

// DeactivateAllForAccount terminates every live session for an account.
func (repository *PostgresSessionRepository) DeactivateAllForAccount(ctx context.Context, accountID string) error {
	const query = `UPDATE accounts.session SET active = FALSE WHERE accountid = $1 AND active = TRUE`
	_, err := repository.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_deactivate_all_failed: %w", err)
	}
	return nil
}

// DeactivateOthers terminates all of the account's live sessions except the
// given one.
func (repository *PostgresSessionRepository) DeactivateOthers(ctx context.Context, accountID, keepSessionID string) error {
	const query = `
		UPDATE accounts.session
		SET active = FALSE
		WHERE accountid = $1 AND id != $2 AND active = TRUE`

	_, err := repository.pool.Exec(ctx, query, accountID, keepSessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_deactivate_others_failed: %w", err)
	}

	return nil
}

// DeleteExpired physically removes sessions past their expiry. Run
// periodically by the background sweeper.
func (repository *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM accounts.session WHERE expiresat < $1`

	tag, err := repository.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
