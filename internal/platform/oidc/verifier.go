// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package oidc implements the third-party identity verifier collaborator.

It validates OpenID Connect ID tokens issued by an external provider
(Google by default) and extracts the claims the identity-linking engine
needs: stable subject id, email, and the provider's own email-verified flag.

Architecture:

  - Discovery: Provider endpoints are discovered once at startup.
  - Authoritative verification: Signature, issuer, audience, and expiry are
    all checked by coreos/go-oidc before any claim is trusted.
*/
package oidc

import (
	"context"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/taibuivan/veyra/internal/platform/apperr"
)

// Identity is the verified third-party identity handed to the linking engine.
type Identity struct {
	// Provider is the short name of the identity provider (e.g. "google").
	Provider string

	// SubjectID is the provider's stable, unique identifier for this user.
	SubjectID string

	// Email is the address asserted by the provider.
	Email string

	// EmailVerified reports whether the PROVIDER has verified the address.
	EmailVerified bool

	// Name is the display name asserted by the provider, if any.
	Name string
}

// Verifier validates ID-token proofs against one OIDC provider.
type Verifier struct {
	providerName    string
	idTokenVerifier *gooidc.IDTokenVerifier
	oauthConfig     *oauth2.Config
}

// NewVerifier discovers the provider's endpoints and prepares token validation.
//
// # Parameters
//   - ctx: Context for the discovery request.
//   - issuerURL: The provider's issuer URL (e.g. https://accounts.google.com).
//   - providerName: Short name stored on provider links (e.g. "google").
//   - clientID, clientSecret: OAuth client credentials.
func NewVerifier(ctx context.Context, issuerURL, providerName, clientID, clientSecret string) (*Verifier, error) {
	provider, err := gooidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc: provider discovery failed: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
	}

	idTokenVerifier := provider.Verifier(&gooidc.Config{ClientID: clientID})

	return &Verifier{
		providerName:    providerName,
		idTokenVerifier: idTokenVerifier,
		oauthConfig:     oauthConfig,
	}, nil
}

// ProviderName returns the short name recorded on provider links.
func (verifier *Verifier) ProviderName() string {
	return verifier.providerName
}

/*
Verify validates a raw ID token and extracts the identity claims.

Description: Any verification failure — bad signature, wrong audience,
expired token — is normalized to a generic authentication error so clients
cannot distinguish failure causes.

Parameters:
  - ctx: context.Context
  - rawIDToken: string (the proof presented by the client)

Returns:
  - *Identity: Verified identity claims
  - error: apperr.AuthenticationFailed on any verification failure
*/
func (verifier *Verifier) Verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := verifier.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, apperr.AuthenticationFailed()
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, apperr.AuthenticationFailed()
	}

	return &Identity{
		Provider:      verifier.providerName,
		SubjectID:     idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
