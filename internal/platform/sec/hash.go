// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// # Hashing Constraints

const (
	// MinPasswordLength is the floor enforced on user-chosen passwords.
	// Machine-generated tokens are exempt (they carry far more entropy).
	MinPasswordLength = 8

	// minMemoryKiB is the lowest acceptable Argon2id memory cost (64 MiB).
	minMemoryKiB = 64 * 1024

	// minTimeCost is the lowest acceptable number of Argon2id passes.
	minTimeCost = 3

	// minParallelism is the lowest acceptable number of Argon2id lanes.
	minParallelism = 4

	// saltLength is the byte length of the per-digest random salt.
	saltLength = 16

	// keyLength is the byte length of the derived key.
	keyLength = 32
)

var (
	// ErrSecretRequired is returned when an empty secret is passed to a hash method.
	ErrSecretRequired = errors.New("sec: secret must not be empty")

	// ErrPasswordTooShort is returned when a password is below [MinPasswordLength].
	ErrPasswordTooShort = fmt.Errorf("sec: password must be at least %d characters", MinPasswordLength)
)

// Hasher derives and verifies Argon2id digests in PHC string format.
//
// # Digest Format
//
// Every digest self-describes its parameters:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
//
// so verification never depends on external configuration — digests written
// with older cost parameters keep verifying after a tuning change.
type Hasher struct {
	memoryKiB   uint32
	timeCost    uint32
	parallelism uint8
}

// NewHasher constructs a [Hasher] with the given Argon2id cost parameters.
//
// Parameters below the security floor (64 MiB, 3 passes, 4 lanes) are raised
// to it. Misconfiguration must never silently weaken credential storage.
func NewHasher(memoryKiB, timeCost uint32, parallelism uint8) *Hasher {
	if memoryKiB < minMemoryKiB {
		memoryKiB = minMemoryKiB
	}
	if timeCost < minTimeCost {
		timeCost = minTimeCost
	}
	if parallelism < minParallelism {
		parallelism = minParallelism
	}
	return &Hasher{
		memoryKiB:   memoryKiB,
		timeCost:    timeCost,
		parallelism: parallelism,
	}
}

/*
HashPassword hashes a user-chosen password.

Description: Enforces the minimum password length before deriving the digest.

Parameters:
  - plainTextPassword: string

Returns:
  - string: PHC-encoded Argon2id digest
  - error: ErrSecretRequired, ErrPasswordTooShort, or entropy failures
*/
func (hasher *Hasher) HashPassword(plainTextPassword string) (string, error) {
	if plainTextPassword == "" {
		return "", ErrSecretRequired
	}
	if len(plainTextPassword) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	return hasher.hash(plainTextPassword)
}

/*
HashToken hashes a machine-generated secret (refresh tokens, one-time tokens).

Description: Tokens skip the password length floor but not the emptiness check.

Parameters:
  - token: string

Returns:
  - string: PHC-encoded Argon2id digest
  - error: ErrSecretRequired or entropy failures
*/
func (hasher *Hasher) HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrSecretRequired
	}
	return hasher.hash(token)
}

// hash derives a fresh salted digest for the secret.
func (hasher *Hasher) hash(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, hasher.timeCost, hasher.memoryKiB, hasher.parallelism, keyLength)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(key)

	digest := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hasher.memoryKiB, hasher.timeCost, hasher.parallelism, encodedSalt, encodedKey)

	return digest, nil
}

/*
Verify compares a plain-text secret against a PHC-encoded digest.

Description: Re-derives the key using the parameters embedded in the digest
and compares in constant time. A malformed digest, a parameter mismatch, or a
wrong secret all return false — callers must never learn WHY verification
failed.

Parameters:
  - encodedDigest: string (PHC format)
  - secret: string

Returns:
  - bool: true only if the secret matches the digest
*/
func (hasher *Hasher) Verify(encodedDigest, secret string) bool {
	memoryKiB, timeCost, parallelism, salt, expectedKey, err := decodeDigest(encodedDigest)
	if err != nil {
		return false
	}

	derivedKey := argon2.IDKey([]byte(secret), salt, timeCost, memoryKiB, parallelism, uint32(len(expectedKey)))

	return subtle.ConstantTimeCompare(derivedKey, expectedKey) == 1
}

// decodeDigest parses a PHC-formatted Argon2id digest into its parts.
func decodeDigest(encodedDigest string) (memoryKiB, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encodedDigest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errors.New("sec: malformed digest")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("sec: unsupported digest version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryKiB, &timeCost, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, errors.New("sec: malformed digest parameters")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, errors.New("sec: malformed digest salt")
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, errors.New("sec: malformed digest key")
	}

	return memoryKiB, timeCost, parallelism, salt, key, nil
}

// GenerateSecureToken returns a URL-safe random token of byteLength entropy bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
