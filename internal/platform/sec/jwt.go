// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Argon2id hashing, JWT
// signing) from the domain logic. It is injected into the Application layer
// via narrow interfaces so engines never touch key material directly.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Token Codec Constraints

const (
	// MinSigningSecretLength is the minimum HMAC secret length in bytes.
	// Anything shorter makes HS256 brute-forceable offline.
	MinSigningSecretLength = 32

	// tokenUseAccess marks a short-lived stateless access token.
	tokenUseAccess = "access"

	// tokenUseRefresh marks a long-lived session-bound refresh token.
	tokenUseRefresh = "refresh"
)

var (
	// ErrSigningSecretTooShort is returned by [NewTokenService] on weak secrets.
	ErrSigningSecretTooShort = fmt.Errorf("sec: signing secret must be at least %d bytes", MinSigningSecretLength)

	// ErrTokenExpired is returned when a token's signature is valid but its
	// expiry claim has passed.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenInvalid is returned for any malformed, tampered, or
	// wrong-kind token.
	ErrTokenInvalid = errors.New("sec: token invalid")
)

// AccessClaims is the payload embedded inside an access token.
//
// # Why self-contained claims?
//
// By embedding the account ID, email, and session ID directly inside the JWT,
// authenticating middleware reconstructs the caller's identity WITHOUT a
// store lookup on every request. Only the refresh path touches the store.
type AccessClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	Email     string `json:"eml,omitempty"`
	SessionID string `json:"sid"`
	TokenUse  string `json:"use"`
}

// RefreshClaims is the payload embedded inside a refresh token.
//
// The refresh token is deliberately minimal: subject and session id only.
// Everything else is re-read from the store during rotation.
type RefreshClaims struct {
	jwt.RegisteredClaims

	SessionID string `json:"sid"`
	TokenUse  string `json:"use"`
}

// TokenService signs and verifies the two token kinds using HS256.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a [TokenService] with the shared HMAC secret.
//
// Returns [ErrSigningSecretTooShort] if the secret is under 32 bytes; a weak
// secret is a deployment error, never something to limp along with.
func NewTokenService(secret []byte, issuer string) (*TokenService, error) {
	if len(secret) < MinSigningSecretLength {
		return nil, ErrSigningSecretTooShort
	}
	return &TokenService{secret: secret, issuer: issuer}, nil
}

/*
SignAccessToken creates a short-lived stateless access token.

Parameters:
  - accountID: string (JWT subject)
  - email: string
  - sessionID: string
  - timeToLive: time.Duration

Returns:
  - string: Signed compact JWT
  - error: Signing failures
*/
func (service *TokenService) SignAccessToken(accountID, email, sessionID string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Email:     email,
		SessionID: sessionID,
		TokenUse:  tokenUseAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign access token: %w", err)
	}

	return signedToken, nil
}

/*
SignRefreshToken creates a long-lived refresh token bound to one session.

Parameters:
  - accountID: string (JWT subject)
  - sessionID: string
  - timeToLive: time.Duration

Returns:
  - string: Signed compact JWT
  - error: Signing failures
*/
func (service *TokenService) SignRefreshToken(accountID, sessionID string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		SessionID: sessionID,
		TokenUse:  tokenUseRefresh,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign refresh token: %w", err)
	}

	return signedToken, nil
}

/*
VerifyAccessToken checks the signature, expiry, and kind of an access token.

Returns:
  - *AccessClaims: Verified claims
  - error: ErrTokenExpired or ErrTokenInvalid
*/
func (service *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := service.verify(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenUse != tokenUseAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

/*
VerifyRefreshToken checks the signature, expiry, and kind of a refresh token.

Returns:
  - *RefreshClaims: Verified claims
  - error: ErrTokenExpired or ErrTokenInvalid
*/
func (service *TokenService) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := service.verify(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenUse != tokenUseRefresh {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// verify parses the token into claims, normalizing parse failures into the
// two-error vocabulary. Callers map both to a generic authentication failure
// toward the client while logging the distinction internally.
func (service *TokenService) verify(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	if !token.Valid {
		return ErrTokenInvalid
	}

	return nil
}

/*
PeekAccessClaims decodes an access token WITHOUT verifying its signature.

Description: Non-authoritative inspection only (e.g. reading the expiry for
diagnostics). The result must never gate an authorization decision.

Returns:
  - *AccessClaims: Unverified claims
  - error: ErrTokenInvalid on malformed tokens
*/
func (service *TokenService) PeekAccessClaims(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
