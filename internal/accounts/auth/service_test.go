// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/veyra/internal/accounts/audit"
	"github.com/taibuivan/veyra/internal/accounts/auth"
	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/mailer"
)

/*
TestRegister covers enrollment: normalization, hashing, verification token.
*/
func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates_account_with_verification_token", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)

		account, err := fixture.service.Register(ctx, auth.RegisterInput{
			Email:    "  Owner@Veyra.App ",
			Password: "a strong password",
		})
		require.NoError(t, err)

		assert.Equal(t, "owner@veyra.app", account.Email, "email is normalized")
		assert.True(t, account.Active)
		assert.False(t, account.EmailVerified)
		assert.NotEqual(t, "a strong password", account.PasswordHash, "password is never stored in clear")

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, stored.EmailVerificationToken)
		assert.Equal(t, mailer.KindEmailVerification, fixture.mail.lastKind())
	})

	t.Run("rejects_duplicate_email", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "a strong password")

		_, err := fixture.service.Register(ctx, auth.RegisterInput{
			Email:    "OWNER@veyra.app",
			Password: "another password",
		})
		require.Error(t, err)
		assert.Equal(t, "CONFLICT", apperr.As(err).Code)
	})

	t.Run("rejects_short_password", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)

		_, err := fixture.service.Register(ctx, auth.RegisterInput{
			Email:    "owner@veyra.app",
			Password: "short",
		})
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
	})
}

/*
TestLogin covers the ordered credential checks and session establishment.
*/
func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("issues_token_pair_and_session", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		result, err := fixture.service.Login(ctx, auth.LoginInput{
			Email:    "owner@veyra.app",
			Password: "a strong password",
			Device:   testDevice("device-1"),
		})
		require.NoError(t, err)

		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, account.ID, result.Account.ID)

		claims, err := fixture.tokens.VerifyAccessToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, account.ID, claims.Subject)
		assert.Equal(t, result.SessionID, claims.SessionID)

		session, err := fixture.sessions.FindByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.True(t, session.Active)
		assert.NotEqual(t, "pending", session.RefreshTokenHash, "digest is bound after creation")
	})

	t.Run("unknown_email_and_wrong_password_are_indistinguishable", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "a strong password")

		_, unknownErr := fixture.service.Login(ctx, auth.LoginInput{
			Email: "nobody@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		_, wrongErr := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "not the password", Device: testDevice("d"),
		})

		require.Error(t, unknownErr)
		require.Error(t, wrongErr)
		assert.Equal(t, apperr.As(unknownErr).Message, apperr.As(wrongErr).Message)
		assert.Equal(t, apperr.As(unknownErr).Code, apperr.As(wrongErr).Code)
	})

	t.Run("inactive_account_is_rejected", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")
		require.NoError(t, fixture.accounts.Deactivate(ctx, account.ID))

		_, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("permanent_ban_is_rejected", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")
		require.NoError(t, fixture.accounts.SetBan(ctx, account.ID, auth.Ban{Kind: auth.BanPermanent, Reason: "abuse"}))

		_, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("expired_temporary_ban_allows_login", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")
		past := time.Now().Add(-time.Hour)
		require.NoError(t, fixture.accounts.SetBan(ctx, account.ID, auth.Ban{Kind: auth.BanTemporary, EndsAt: &past}))

		_, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		assert.NoError(t, err)
	})

	t.Run("lockout_after_repeated_failures", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		for i := 0; i < auth.MaxFailedLogins; i++ {
			_, err := fixture.service.Login(ctx, auth.LoginInput{
				Email: "owner@veyra.app", Password: "wrong password", Device: testDevice("d"),
			})
			require.Error(t, err)
		}

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.MaxFailedLogins, stored.FailedLoginCount)
		require.NotNil(t, stored.LockedUntil)
		assert.True(t, fixture.audit.has(audit.ActionLockout, audit.OutcomeDenied))

		// The right password is refused while the lock holds.
		_, err = fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("success_clears_failure_counters", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		for i := 0; i < auth.MaxFailedLogins-1; i++ {
			_, _ = fixture.service.Login(ctx, auth.LoginInput{
				Email: "owner@veyra.app", Password: "wrong password", Device: testDevice("d"),
			})
		}

		_, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.NoError(t, err)

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Zero(t, stored.FailedLoginCount)
		assert.Nil(t, stored.LockedUntil)
	})

	t.Run("passwordless_account_cannot_be_locked_by_guesses", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		seeded := &auth.Account{
			ID: "acct-provider", Email: "owner@veyra.app", Active: true,
			Ban: auth.Ban{Kind: auth.BanNone},
			ProviderLinks: []auth.ProviderLink{
				{Provider: "google", ProviderSubject: "goog-1", ProviderEmail: "owner@veyra.app"},
			},
		}
		require.NoError(t, fixture.accounts.Create(ctx, seeded))

		for i := 0; i < auth.MaxFailedLogins+1; i++ {
			_, err := fixture.service.Login(ctx, auth.LoginInput{
				Email: "owner@veyra.app", Password: "any guess", Device: testDevice("d"),
			})
			require.Error(t, err)
			assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
		}

		// There is no password to guess, so nothing counts toward a lockout.
		stored, err := fixture.accounts.FindByID(ctx, "acct-provider")
		require.NoError(t, err)
		assert.Zero(t, stored.FailedLoginCount)
		assert.Nil(t, stored.LockedUntil)
		assert.False(t, fixture.audit.has(audit.ActionLockout, audit.OutcomeDenied))
	})

	t.Run("second_login_supersedes_device_session", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "a strong password")

		first, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("device-1"),
		})
		require.NoError(t, err)

		second, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("device-1"),
		})
		require.NoError(t, err)

		assert.Equal(t, first.DeviceID, second.DeviceID, "same identifier resolves to the same device")
		assert.NotEqual(t, first.SessionID, second.SessionID)

		old, err := fixture.sessions.FindByID(ctx, first.SessionID)
		require.NoError(t, err)
		assert.False(t, old.Active, "previous device session is superseded")
		assert.Equal(t, 1, fixture.sessions.activeCount())
	})

	t.Run("shared_counter_throttles_over_budget", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "a strong password")

		for i := int64(0); i < auth.MaxAttemptsPerWindow; i++ {
			_, err := fixture.counter.Incr(ctx, "owner@veyra.app", auth.AttemptWindow)
			require.NoError(t, err)
		}

		_, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.Error(t, err)
		assert.Equal(t, "RATE_LIMITED", apperr.As(err).Code)
	})
}

/*
TestRefresh covers rotation, reuse detection, and the rotation race.
*/
func TestRefresh(t *testing.T) {
	ctx := context.Background()

	login := func(t *testing.T, fixture *serviceFixture) *auth.LoginResult {
		t.Helper()
		fixture.register(t, "owner@veyra.app", "a strong password")
		result, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("device-1"),
		})
		require.NoError(t, err)
		return result
	}

	t.Run("rotates_the_pair_on_the_same_session", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		first := login(t, fixture)

		second, err := fixture.service.Refresh(ctx, first.RefreshToken)
		require.NoError(t, err)

		assert.Equal(t, first.SessionID, second.SessionID, "rotation keeps the session")
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

		session, err := fixture.sessions.FindByID(ctx, first.SessionID)
		require.NoError(t, err)
		assert.True(t, session.Active)
	})

	t.Run("replaying_a_rotated_token_kills_the_session", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		first := login(t, fixture)

		_, err := fixture.service.Refresh(ctx, first.RefreshToken)
		require.NoError(t, err)

		// The old token is signed for a live session but its digest no
		// longer matches: reuse.
		_, err = fixture.service.Refresh(ctx, first.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

		session, sessErr := fixture.sessions.FindByID(ctx, first.SessionID)
		require.NoError(t, sessErr)
		assert.False(t, session.Active, "reuse deactivates the session")
		assert.True(t, fixture.audit.has(audit.ActionRefreshReuse, audit.OutcomeDenied))
	})

	t.Run("losing_the_rotation_race_keeps_the_session_alive", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		first := login(t, fixture)

		fixture.sessions.forceRotateLoss = true
		_, err := fixture.service.Refresh(ctx, first.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

		// The loser must not punish the winner: the session survives.
		session, sessErr := fixture.sessions.FindByID(ctx, first.SessionID)
		require.NoError(t, sessErr)
		assert.True(t, session.Active)
	})

	t.Run("two_simultaneous_refreshes_produce_one_winner", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		first := login(t, fixture)

		// Hold both callers at the rotation step so each has already read
		// the live session and accepted the digest before either commits.
		var ready sync.WaitGroup
		ready.Add(2)
		fixture.sessions.rotateBarrier = func() {
			ready.Done()
			ready.Wait()
		}

		results := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				_, err := fixture.service.Refresh(ctx, first.RefreshToken)
				results <- err
			}()
		}

		var failures int
		for i := 0; i < 2; i++ {
			if err := <-results; err != nil {
				failures++
				assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
			}
		}
		assert.Equal(t, 1, failures, "exactly one caller rotates the pair")

		session, err := fixture.sessions.FindByID(ctx, first.SessionID)
		require.NoError(t, err)
		assert.True(t, session.Active, "the loser must not punish the winner")
		assert.False(t, fixture.audit.has(audit.ActionRefreshReuse, audit.OutcomeDenied))
	})

	t.Run("garbage_token_is_rejected", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		login(t, fixture)

		_, err := fixture.service.Refresh(ctx, "not-a-token")
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("deactivated_account_cannot_refresh", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		first := login(t, fixture)
		require.NoError(t, fixture.accounts.Deactivate(ctx, first.Account.ID))

		_, err := fixture.service.Refresh(ctx, first.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})
}

/*
TestLogout covers single and whole-account termination.
*/
func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivates_own_session_idempotently", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "a strong password")
		result, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.NoError(t, err)

		require.NoError(t, fixture.service.Logout(ctx, result.Account.ID, result.SessionID))
		assert.Zero(t, fixture.sessions.activeCount())

		// Again, and for a session that never existed.
		assert.NoError(t, fixture.service.Logout(ctx, result.Account.ID, result.SessionID))
		assert.NoError(t, fixture.service.Logout(ctx, result.Account.ID, "no-such-session"))
	})

	t.Run("cannot_end_someone_elses_session", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "a strong password")
		result, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "a strong password", Device: testDevice("d"),
		})
		require.NoError(t, err)

		err = fixture.service.Logout(ctx, "intruder", result.SessionID)
		require.Error(t, err)
		assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)
	})

	t.Run("logout_all_ends_every_device", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		for _, device := range []string{"laptop", "phone", "tablet"} {
			_, err := fixture.service.Login(ctx, auth.LoginInput{
				Email: "owner@veyra.app", Password: "a strong password", Device: testDevice(device),
			})
			require.NoError(t, err)
		}
		require.Equal(t, 3, fixture.sessions.activeCount())

		require.NoError(t, fixture.service.LogoutAll(ctx, account.ID))
		assert.Zero(t, fixture.sessions.activeCount())
	})
}

/*
TestPasswordReset covers the request/consume recovery flow.
*/
func TestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown_email_succeeds_silently", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		assert.NoError(t, fixture.service.RequestPasswordReset(ctx, "nobody@veyra.app"))
		assert.Empty(t, fixture.mail.sent)
	})

	t.Run("passwordless_account_request_has_no_effect", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		seeded := &auth.Account{
			ID: "acct-provider", Email: "owner@veyra.app", Active: true,
			Ban: auth.Ban{Kind: auth.BanNone},
			ProviderLinks: []auth.ProviderLink{
				{Provider: "google", ProviderSubject: "goog-1", ProviderEmail: "owner@veyra.app"},
			},
		}
		require.NoError(t, fixture.accounts.Create(ctx, seeded))

		// Same silent success as an unknown email, and no token to later
		// install a password with.
		assert.NoError(t, fixture.service.RequestPasswordReset(ctx, "owner@veyra.app"))
		assert.Empty(t, fixture.mail.sent)

		stored, err := fixture.accounts.FindByID(ctx, "acct-provider")
		require.NoError(t, err)
		assert.Empty(t, stored.PasswordResetToken)
		assert.Nil(t, stored.PasswordResetExpiresAt)
		assert.False(t, stored.HasPassword())
	})

	t.Run("full_reset_flow", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "old password!")

		// Open a session that must die with the old password.
		_, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "old password!", Device: testDevice("d"),
		})
		require.NoError(t, err)

		require.NoError(t, fixture.service.RequestPasswordReset(ctx, "OWNER@veyra.app"))
		assert.Equal(t, mailer.KindPasswordReset, fixture.mail.lastKind())

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		token := stored.PasswordResetToken
		require.NotEmpty(t, token)

		require.NoError(t, fixture.service.ResetPassword(ctx, token, "brand new password"))

		stored, err = fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.PasswordResetToken, "token is single-use")
		assert.Zero(t, fixture.sessions.activeCount(), "all sessions are terminated")
		assert.Equal(t, mailer.KindPasswordChanged, fixture.mail.lastKind())

		// Old password is dead, new one works.
		_, err = fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "old password!", Device: testDevice("d"),
		})
		require.Error(t, err)
		_, err = fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "brand new password", Device: testDevice("d"),
		})
		assert.NoError(t, err)

		// The consumed token cannot be replayed.
		err = fixture.service.ResetPassword(ctx, token, "yet another password")
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("reset_clears_a_lockout", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "old password!")

		for i := 0; i < auth.MaxFailedLogins; i++ {
			_, _ = fixture.service.Login(ctx, auth.LoginInput{
				Email: "owner@veyra.app", Password: "wrong", Device: testDevice("d"),
			})
		}

		require.NoError(t, fixture.service.RequestPasswordReset(ctx, "owner@veyra.app"))
		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		require.NoError(t, fixture.service.ResetPassword(ctx, stored.PasswordResetToken, "brand new password"))

		_, err = fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "brand new password", Device: testDevice("d"),
		})
		assert.NoError(t, err, "proving mailbox control lifts the lock")
	})

	t.Run("newer_token_invalidates_older", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "old password!")

		require.NoError(t, fixture.service.RequestPasswordReset(ctx, "owner@veyra.app"))
		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		firstToken := stored.PasswordResetToken

		require.NoError(t, fixture.service.RequestPasswordReset(ctx, "owner@veyra.app"))

		err = fixture.service.ResetPassword(ctx, firstToken, "brand new password")
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})
}

/*
TestChangePassword covers the authenticated password change.
*/
func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("requires_the_current_password", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "old password!")
		result, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "old password!", Device: testDevice("d"),
		})
		require.NoError(t, err)

		err = fixture.service.ChangePassword(ctx, result.Account.ID, result.SessionID, "not the password", "brand new password")
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("keeps_the_calling_session_only", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		fixture.register(t, "owner@veyra.app", "old password!")

		caller, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "old password!", Device: testDevice("laptop"),
		})
		require.NoError(t, err)
		other, err := fixture.service.Login(ctx, auth.LoginInput{
			Email: "owner@veyra.app", Password: "old password!", Device: testDevice("phone"),
		})
		require.NoError(t, err)

		err = fixture.service.ChangePassword(ctx, caller.Account.ID, caller.SessionID, "old password!", "brand new password")
		require.NoError(t, err)

		kept, err := fixture.sessions.FindByID(ctx, caller.SessionID)
		require.NoError(t, err)
		assert.True(t, kept.Active)

		dropped, err := fixture.sessions.FindByID(ctx, other.SessionID)
		require.NoError(t, err)
		assert.False(t, dropped.Active)

		assert.Equal(t, mailer.KindPasswordChanged, fixture.mail.lastKind())
	})
}

/*
TestEmailVerification covers the verification token round trip.
*/
func TestEmailVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("verify_consumes_the_token", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		token := stored.EmailVerificationToken
		require.NotEmpty(t, token)

		require.NoError(t, fixture.service.VerifyEmail(ctx, token))

		stored, err = fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, stored.EmailVerified)
		assert.Empty(t, stored.EmailVerificationToken)

		// Replaying the consumed token fails.
		err = fixture.service.VerifyEmail(ctx, token)
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("resend_replaces_the_pending_token", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		firstToken := stored.EmailVerificationToken

		require.NoError(t, fixture.service.RequestEmailVerification(ctx, account.ID))

		stored, err = fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.NotEqual(t, firstToken, stored.EmailVerificationToken)
	})

	t.Run("resend_for_verified_email_conflicts", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		account := fixture.register(t, "owner@veyra.app", "a strong password")

		stored, err := fixture.accounts.FindByID(ctx, account.ID)
		require.NoError(t, err)
		require.NoError(t, fixture.service.VerifyEmail(ctx, stored.EmailVerificationToken))

		err = fixture.service.RequestEmailVerification(ctx, account.ID)
		require.Error(t, err)
		assert.Equal(t, "CONFLICT", apperr.As(err).Code)
	})
}

/*
TestSweepExpiredSessions covers the background eviction hook.
*/
func TestSweepExpiredSessions(t *testing.T) {
	ctx := context.Background()
	fixture := newServiceFixture(t, nil)

	stale := &auth.Session{
		ID: "stale", AccountID: "a", DeviceID: "d1",
		RefreshTokenHash: "digest:x", Active: false,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	live := &auth.Session{
		ID: "live", AccountID: "a", DeviceID: "d2",
		RefreshTokenHash: "digest:y", Active: true,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, fixture.sessions.Create(ctx, stale))
	require.NoError(t, fixture.sessions.Create(ctx, live))

	removed, err := fixture.service.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = fixture.sessions.FindByID(ctx, "stale")
	assert.Error(t, err)
	_, err = fixture.sessions.FindByID(ctx, "live")
	assert.NoError(t, err)
}
