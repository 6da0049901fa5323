// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/veyra/internal/accounts/audit"
	"github.com/taibuivan/veyra/internal/accounts/auth"
	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/mailer"
	"github.com/taibuivan/veyra/internal/platform/oidc"
	"github.com/taibuivan/veyra/internal/platform/sec"
)

// # In-Memory Repositories

// memAccounts is an in-memory AccountRepository mirroring the Postgres
// implementation's semantics (normalized emails, conflict on duplicates).
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]*auth.Account{}}
}

func cloneAccount(account *auth.Account) *auth.Account {
	clone := *account
	clone.ProviderLinks = append([]auth.ProviderLink(nil), account.ProviderLinks...)
	return &clone
}

func (store *memAccounts) get(id string) (*auth.Account, error) {
	account, ok := store.accounts[id]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	return account, nil
}

func (store *memAccounts) FindByID(_ context.Context, id string) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(id)
	if err != nil {
		return nil, err
	}
	return cloneAccount(account), nil
}

func (store *memAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.Email == email {
			return cloneAccount(account), nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (store *memAccounts) FindByUsername(_ context.Context, username string) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.Username == username {
			return cloneAccount(account), nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (store *memAccounts) FindByProviderSubject(_ context.Context, provider, subjectID string) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		for _, link := range account.ProviderLinks {
			if link.Provider == provider && link.ProviderSubject == subjectID {
				return cloneAccount(account), nil
			}
		}
	}
	return nil, apperr.NotFound("Account")
}

func (store *memAccounts) FindByResetToken(_ context.Context, token string, now time.Time) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.PasswordResetToken == token && token != "" &&
			account.PasswordResetExpiresAt != nil && now.Before(*account.PasswordResetExpiresAt) {
			return cloneAccount(account), nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (store *memAccounts) FindByVerificationToken(_ context.Context, token string, now time.Time) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.EmailVerificationToken == token && token != "" &&
			account.EmailVerificationExpiresAt != nil && now.Before(*account.EmailVerificationExpiresAt) {
			return cloneAccount(account), nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (store *memAccounts) Create(_ context.Context, account *auth.Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.accounts {
		if existing.Email == account.Email {
			return apperr.Conflict("An account with this email or username already exists")
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	store.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (store *memAccounts) UpdatePassword(_ context.Context, accountID, newHash string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.PasswordHash = newHash
	return nil
}

func (store *memAccounts) RecordLoginFailure(_ context.Context, accountID string, threshold int, lockUntil time.Time) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return 0, err
	}
	account.FailedLoginCount++
	now := time.Now()
	account.LastFailedLoginAt = &now
	if account.FailedLoginCount >= threshold {
		until := lockUntil
		account.LockedUntil = &until
	}
	return account.FailedLoginCount, nil
}

func (store *memAccounts) ResetLockout(_ context.Context, accountID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.FailedLoginCount = 0
	account.LockedUntil = nil
	return nil
}

func (store *memAccounts) SetBan(_ context.Context, accountID string, ban auth.Ban) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.Ban = ban
	return nil
}

func (store *memAccounts) Deactivate(_ context.Context, accountID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.Active = false
	return nil
}

func (store *memAccounts) SetResetToken(_ context.Context, accountID, token string, expiresAt time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.PasswordResetToken = token
	account.PasswordResetExpiresAt = &expiresAt
	return nil
}

func (store *memAccounts) ClearResetToken(_ context.Context, accountID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.PasswordResetToken = ""
	account.PasswordResetExpiresAt = nil
	return nil
}

func (store *memAccounts) SetVerificationToken(_ context.Context, accountID, token string, expiresAt time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.EmailVerificationToken = token
	account.EmailVerificationExpiresAt = &expiresAt
	return nil
}

func (store *memAccounts) MarkEmailVerified(_ context.Context, accountID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.EmailVerified = true
	account.EmailVerificationToken = ""
	account.EmailVerificationExpiresAt = nil
	return nil
}

func (store *memAccounts) AddProviderLink(_ context.Context, accountID string, link auth.ProviderLink) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.accounts {
		for _, existingLink := range existing.ProviderLinks {
			if existingLink.Provider == link.Provider && existingLink.ProviderSubject == link.ProviderSubject {
				return apperr.Conflict("This third-party identity is already linked")
			}
		}
	}
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	account.ProviderLinks = append(account.ProviderLinks, link)
	return nil
}

func (store *memAccounts) RemoveProviderLink(_ context.Context, accountID, provider string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	links := account.ProviderLinks[:0]
	for _, link := range account.ProviderLinks {
		if link.Provider != provider {
			links = append(links, link)
		}
	}
	account.ProviderLinks = links
	return nil
}

func (store *memAccounts) TouchProviderLogin(_ context.Context, accountID, provider string, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, err := store.get(accountID)
	if err != nil {
		return err
	}
	for index := range account.ProviderLinks {
		if account.ProviderLinks[index].Provider == provider {
			stamp := at
			account.ProviderLinks[index].LastLoginAt = &stamp
		}
	}
	return nil
}

// memDevices is an in-memory DeviceRepository. failNextCreate simulates the
// unique violation a concurrent insert produces in Postgres.
type memDevices struct {
	mu             sync.Mutex
	devices        map[string]*auth.Device
	failNextCreate bool
}

func newMemDevices() *memDevices {
	return &memDevices{devices: map[string]*auth.Device{}}
}

func (store *memDevices) FindByIdentifier(_ context.Context, identifier string) (*auth.Device, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, device := range store.devices {
		if device.Identifier == identifier {
			clone := *device
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Device")
}

func (store *memDevices) Create(_ context.Context, device *auth.Device) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failNextCreate {
		// Simulate a concurrent winner: its row lands, ours violates the
		// unique index.
		store.failNextCreate = false
		winner := *device
		winner.ID = "winner-" + device.Identifier
		store.devices[winner.ID] = &winner
		return &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	}
	for _, existing := range store.devices {
		if existing.Identifier == device.Identifier {
			return &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		}
	}
	clone := *device
	store.devices[device.ID] = &clone
	return nil
}

func (store *memDevices) Touch(_ context.Context, deviceID string, input auth.DeviceInput, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	device, ok := store.devices[deviceID]
	if !ok {
		return apperr.NotFound("Device")
	}
	device.Fingerprint = input.Fingerprint
	device.Platform = input.Platform
	device.Model = input.Model
	device.LastSeenAt = at
	return nil
}

// memSessions is an in-memory SessionRepository. forceRotateLoss makes the
// next conditional rotation report a lost race without touching the row;
// rotateBarrier, when set, runs before the rotation takes the lock so tests
// can line up concurrent callers.
type memSessions struct {
	mu              sync.Mutex
	sessions        map[string]*auth.Session
	forceRotateLoss bool
	rotateBarrier   func()
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*auth.Session{}}
}

func (store *memSessions) Create(_ context.Context, session *auth.Session) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if session.Active {
		for _, existing := range store.sessions {
			if existing.Active && existing.DeviceID == session.DeviceID {
				return apperr.Conflict("An active session already exists for this device")
			}
		}
	}
	clone := *session
	store.sessions[session.ID] = &clone
	return nil
}

func (store *memSessions) FindByID(_ context.Context, sessionID string) (*auth.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	session, ok := store.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	clone := *session
	return &clone, nil
}

func (store *memSessions) BindRefreshToken(_ context.Context, sessionID, tokenHash string, expiresAt time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	session, ok := store.sessions[sessionID]
	if !ok {
		return apperr.NotFound("Session")
	}
	session.RefreshTokenHash = tokenHash
	session.ExpiresAt = expiresAt
	return nil
}

func (store *memSessions) RotateRefreshToken(_ context.Context, sessionID, currentHash, nextHash string, expiresAt, at time.Time) (bool, error) {
	if store.rotateBarrier != nil {
		store.rotateBarrier()
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.forceRotateLoss {
		store.forceRotateLoss = false
		return false, nil
	}
	session, ok := store.sessions[sessionID]
	if !ok || !session.Active || session.RefreshTokenHash != currentHash {
		return false, nil
	}
	session.RefreshTokenHash = nextHash
	session.ExpiresAt = expiresAt
	session.LastLoginAt = at
	return true, nil
}

func (store *memSessions) Deactivate(_ context.Context, sessionID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if session, ok := store.sessions[sessionID]; ok {
		session.Active = false
	}
	return nil
}

func (store *memSessions) DeactivateForDevice(_ context.Context, deviceID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, session := range store.sessions {
		if session.DeviceID == deviceID {
			session.Active = false
		}
	}
	return nil
}

func (store *memSessions) DeactivateAllForAccount(_ context.Context, accountID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, session := range store.sessions {
		if session.AccountID == accountID {
			session.Active = false
		}
	}
	return nil
}

func (store *memSessions) DeactivateOthers(_ context.Context, accountID, keepSessionID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, session := range store.sessions {
		if session.AccountID == accountID && session.ID != keepSessionID {
			session.Active = false
		}
	}
	return nil
}

func (store *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var removed int64
	for id, session := range store.sessions {
		if session.ExpiresAt.Before(now) {
			delete(store.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (store *memSessions) activeCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	count := 0
	for _, session := range store.sessions {
		if session.Active {
			count++
		}
	}
	return count
}

// # Lightweight Collaborator Fakes

// fastHasher trades Argon2 cost for speed. Digest semantics (exact-match
// verify, no reason leakage) match the real hasher.
type fastHasher struct{}

func (fastHasher) HashPassword(plainTextPassword string) (string, error) {
	if len(plainTextPassword) < sec.MinPasswordLength {
		return "", sec.ErrPasswordTooShort
	}
	return "digest:" + plainTextPassword, nil
}

func (fastHasher) HashToken(token string) (string, error) {
	if token == "" {
		return "", sec.ErrSecretRequired
	}
	return "digest:" + token, nil
}

func (fastHasher) Verify(encodedDigest, secret string) bool {
	return encodedDigest == "digest:"+secret
}

// memCounter is an in-memory AttemptCounter without window expiry.
type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}}
}

func (counter *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	counter.mu.Lock()
	defer counter.mu.Unlock()
	counter.counts[key]++
	return counter.counts[key], nil
}

func (counter *memCounter) Count(_ context.Context, key string) (int64, error) {
	counter.mu.Lock()
	defer counter.mu.Unlock()
	return counter.counts[key], nil
}

func (counter *memCounter) Reset(_ context.Context, key string) error {
	counter.mu.Lock()
	defer counter.mu.Unlock()
	delete(counter.counts, key)
	return nil
}

// auditRecorder captures events synchronously for assertions.
type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (recorder *auditRecorder) Record(_ context.Context, event audit.Event) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, event)
}

func (recorder *auditRecorder) has(action audit.Action, outcome audit.Outcome) bool {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for _, event := range recorder.events {
		if event.Action == action && event.Outcome == outcome {
			return true
		}
	}
	return false
}

// mailRecorder captures outgoing mail instead of dialing SMTP.
type sentMail struct {
	To   string
	Kind mailer.Kind
	Data map[string]string
}

type mailRecorder struct {
	mu   sync.Mutex
	sent []sentMail
}

func (recorder *mailRecorder) Send(_ context.Context, to string, kind mailer.Kind, data map[string]string) error {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.sent = append(recorder.sent, sentMail{To: to, Kind: kind, Data: data})
	return nil
}

func (recorder *mailRecorder) lastKind() mailer.Kind {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.sent) == 0 {
		return ""
	}
	return recorder.sent[len(recorder.sent)-1].Kind
}

// fakeVerifier returns a fixed identity for a fixed proof string.
type fakeVerifier struct {
	provider string
	proof    string
	identity oidc.Identity
}

func (verifier *fakeVerifier) Verify(_ context.Context, rawIDToken string) (*oidc.Identity, error) {
	if rawIDToken != verifier.proof {
		return nil, apperr.AuthenticationFailed()
	}
	identity := verifier.identity
	return &identity, nil
}

func (verifier *fakeVerifier) ProviderName() string { return verifier.provider }

// # Test Harness

type serviceFixture struct {
	service  *auth.Service
	accounts *memAccounts
	devices  *memDevices
	sessions *memSessions
	counter  *memCounter
	audit    *auditRecorder
	mail     *mailRecorder
	tokens   *sec.TokenService
}

func newServiceFixture(t *testing.T, verifiers map[string]auth.IdentityVerifier) *serviceFixture {
	t.Helper()

	tokens, err := sec.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), "accounts.test")
	require.NoError(t, err)

	fixture := &serviceFixture{
		accounts: newMemAccounts(),
		devices:  newMemDevices(),
		sessions: newMemSessions(),
		counter:  newMemCounter(),
		audit:    &auditRecorder{},
		mail:     &mailRecorder{},
		tokens:   tokens,
	}

	fixture.service = auth.NewService(
		fixture.accounts,
		fixture.sessions,
		auth.NewDeviceResolver(fixture.devices),
		tokens,
		fastHasher{},
		fixture.counter,
		fixture.mail,
		fixture.audit,
		verifiers,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return fixture
}

// register enrolls an account and returns its stored state.
func (fixture *serviceFixture) register(t *testing.T, email, password string) *auth.Account {
	t.Helper()
	account, err := fixture.service.Register(context.Background(), auth.RegisterInput{Email: email, Password: password})
	require.NoError(t, err)
	return account
}

func testDevice(identifier string) auth.DeviceInput {
	return auth.DeviceInput{Identifier: identifier, Platform: "ios", Model: "test"}
}
