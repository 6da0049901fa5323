// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/veyra/internal/accounts/audit"
	"github.com/taibuivan/veyra/internal/platform/apperr"
	"github.com/taibuivan/veyra/internal/platform/oidc"
	"github.com/taibuivan/veyra/pkg/uuid"
)

// # Third-Party Identity

// IdentityVerifier validates a provider-issued identity proof and returns
// the attested identity. Implementations live in platform/oidc.
type IdentityVerifier interface {
	// Verify checks the proof's signature, issuer, audience, and expiry.
	Verify(ctx context.Context, rawIDToken string) (*oidc.Identity, error)

	// ProviderName returns the provider key this verifier serves.
	ProviderName() string
}

// verifierFor resolves the configured verifier for a provider key.
func (service *Service) verifierFor(provider string) (IdentityVerifier, error) {
	verifier, ok := service.verifiers[provider]
	if !ok {
		return nil, apperr.ValidationError("Unknown identity provider",
			apperr.FieldError{Field: FieldProvider, Message: "Provider is not supported"})
	}
	return verifier, nil
}

/*
SignInWithProvider authenticates via a third-party identity proof.

Description: After the proof is verified, the decision tree runs on stored
state, most specific match first:

  - The (provider, subject) pair is already linked: log into that account.
  - No link and no account under the attested email: create a passwordless
    account carrying the link, then log in. Such an account can only
    authenticate through its linked providers.
  - An account under the attested email exists but has no password: it was
    provider-born, so the new provider is attached automatically and the
    login proceeds.
  - An account under the attested email exists with a password: refuse with
    a distinct conflict. Silently attaching would let anyone who controls a
    matching provider email into a password-protected account; the owner
    must prove the password through the explicit link flow instead.

Parameters:
  - ctx: context.Context
  - provider: string (configured provider key)
  - rawProof: string (provider-issued identity proof)
  - deviceInput: DeviceInput

Returns:
  - *LoginResult: Same shape as a password login
  - error: AuthenticationFailed, EmailExistsWithPassword, or storage failures
*/
func (service *Service) SignInWithProvider(ctx context.Context, provider, rawProof string, deviceInput DeviceInput) (*LoginResult, error) {
	verifier, err := service.verifierFor(provider)
	if err != nil {
		return nil, err
	}

	identity, err := verifier.Verify(ctx, rawProof)
	if err != nil {
		service.recordAuthDenied(ctx, audit.ActionIdentitySignIn, "", "bad_proof")
		return nil, apperr.AuthenticationFailed()
	}

	now := time.Now()

	// Most specific match first: an existing link wins over email matching.
	account, err := service.accounts.FindByProviderSubject(ctx, identity.Provider, identity.SubjectID)
	if err == nil {
		return service.completeProviderLogin(ctx, account, identity, deviceInput, now)
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	if identity.Email == "" {
		return nil, apperr.Unprocessable("Identity provider did not supply an email address")
	}
	email := normalizeEmail(identity.Email)

	account, err = service.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !apperr.IsNotFound(err) {
			return nil, err
		}
		// No account under this email: provision a passwordless one.
		account, err = service.createProviderAccount(ctx, email, identity, now)
		if err != nil {
			return nil, err
		}
		return service.completeProviderLogin(ctx, account, identity, deviceInput, now)
	}

	if account.HasPassword() {
		service.recordAuthDenied(ctx, audit.ActionIdentitySignIn, account.ID, "email_has_password")
		return nil, apperr.EmailExistsWithPassword()
	}

	// Provider-born account under the same email: attach the new provider.
	link := newProviderLink(identity, now)
	if err := service.accounts.AddProviderLink(ctx, account.ID, link); err != nil {
		return nil, err
	}
	account.ProviderLinks = append(account.ProviderLinks, link)

	return service.completeProviderLogin(ctx, account, identity, deviceInput, now)
}

// createProviderAccount provisions a passwordless account from an attested
// identity. The email inherits the provider's verification status.
func (service *Service) createProviderAccount(ctx context.Context, email string, identity *oidc.Identity, now time.Time) (*Account, error) {
	account := &Account{
		ID:            uuid.New(),
		Email:         email,
		Active:        true,
		EmailVerified: identity.EmailVerified,
		Ban:           Ban{Kind: BanNone},
		ProviderLinks: []ProviderLink{newProviderLink(identity, now)},
	}

	if err := service.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	service.audit.Record(ctx, audit.Event{
		Action:   audit.ActionRegister,
		Outcome:  audit.OutcomeSuccess,
		ActorID:  account.ID,
		Metadata: map[string]string{"provider": identity.Provider},
	})

	return account, nil
}

// completeProviderLogin applies the account-state gate and opens the session.
func (service *Service) completeProviderLogin(ctx context.Context, account *Account, identity *oidc.Identity, deviceInput DeviceInput, now time.Time) (*LoginResult, error) {
	if denied := service.accountDenied(account, now); denied != "" {
		service.recordAuthDenied(ctx, audit.ActionIdentitySignIn, account.ID, denied)
		return nil, apperr.AuthenticationFailed()
	}

	if err := service.accounts.TouchProviderLogin(ctx, account.ID, identity.Provider, now); err != nil {
		return nil, err
	}

	result, err := service.establishSession(ctx, account, deviceInput)
	if err != nil {
		return nil, err
	}

	service.audit.Record(ctx, audit.Event{
		Action:  audit.ActionIdentitySignIn,
		Outcome: audit.OutcomeSuccess,
		ActorID: account.ID,
		Metadata: map[string]string{
			"provider":   identity.Provider,
			"session_id": result.SessionID,
			"device_id":  result.DeviceID,
		},
	})

	return result, nil
}

// newProviderLink builds a link record from an attested identity.
func newProviderLink(identity *oidc.Identity, now time.Time) ProviderLink {
	return ProviderLink{
		Provider:        identity.Provider,
		ProviderSubject: identity.SubjectID,
		ProviderEmail:   identity.Email,
		LinkedAt:        now,
	}
}

// # Explicit Link Management

/*
LinkProvider attaches a third-party identity to an authenticated account.

Description: The caller must re-prove the account password even though the
request already carries a valid access token. A hijacked token alone must not
be enough to attach an attacker-controlled provider as a permanent way in.

Parameters:
  - ctx: context.Context
  - accountID: string (from the verified access token)
  - provider: string
  - rawProof: string
  - password: string (current account password)

Returns:
  - error: AuthenticationFailed, Forbidden (passwordless account),
    Conflict (provider taken or identity linked elsewhere), or storage failures
*/
func (service *Service) LinkProvider(ctx context.Context, accountID, provider, rawProof, password string) error {
	verifier, err := service.verifierFor(provider)
	if err != nil {
		return err
	}

	account, err := service.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !account.HasPassword() {
		return apperr.Forbidden("Linking requires a password-protected account")
	}
	if !service.hasher.Verify(account.PasswordHash, password) {
		service.recordAuthDenied(ctx, audit.ActionProviderLink, account.ID, "wrong_password")
		return apperr.AuthenticationFailed()
	}

	if account.LinkFor(provider) != nil {
		return apperr.Conflict("This provider is already linked to the account")
	}

	identity, err := verifier.Verify(ctx, rawProof)
	if err != nil {
		service.recordAuthDenied(ctx, audit.ActionProviderLink, account.ID, "bad_proof")
		return apperr.AuthenticationFailed()
	}

	if err := service.accounts.AddProviderLink(ctx, account.ID, newProviderLink(identity, time.Now())); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Event{
		Action:   audit.ActionProviderLink,
		Outcome:  audit.OutcomeSuccess,
		ActorID:  account.ID,
		Metadata: map[string]string{"provider": provider},
	})

	return nil
}

/*
UnlinkProvider detaches a third-party identity from an account.

Description: Refused when the removal would leave the account with no way to
authenticate: a passwordless account keeps its last link.

Parameters:
  - ctx: context.Context
  - accountID: string
  - provider: string

Returns:
  - error: NotFound (provider not linked), Conflict (last auth method),
    or storage failures
*/
func (service *Service) UnlinkProvider(ctx context.Context, accountID, provider string) error {
	account, err := service.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if account.LinkFor(provider) == nil {
		return apperr.NotFound("Provider link")
	}

	if !account.HasPassword() && len(account.ProviderLinks) <= 1 {
		return apperr.Conflict("Cannot remove the only sign-in method for this account")
	}

	if err := service.accounts.RemoveProviderLink(ctx, accountID, provider); err != nil {
		return err
	}

	service.audit.Record(ctx, audit.Event{
		Action:   audit.ActionProviderUnlink,
		Outcome:  audit.OutcomeSuccess,
		ActorID:  accountID,
		Metadata: map[string]string{"provider": provider},
	})

	return nil
}
