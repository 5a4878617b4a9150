// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package vault implements the Secret Vault: deterministic
// issue/retrieve/rotate of named secrets against an OS keychain, with
// explicit created/retrieved/rotated lifecycle reporting. Material is
// never logged; it is returned wrapped in a secretmaterial.Material so
// accidental %v/%s logging cannot leak it.
package vault

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/weixin07/listcompare/internal/apperr"
	"github.com/weixin07/listcompare/internal/secretmaterial"
)

// Lifecycle reports the provenance of secret material returned by a
// Vault operation.
type Lifecycle int

const (
	// Retrieved means the backend already held a value for the account.
	Retrieved Lifecycle = iota
	// Created means no value existed and one was generated.
	Created
	// Rotated means an existing value was replaced unconditionally.
	Rotated
)

func (l Lifecycle) String() string {
	switch l {
	case Retrieved:
		return "retrieved"
	case Created:
		return "created"
	case Rotated:
		return "rotated"
	default:
		return "unknown"
	}
}

// Vault issues, retrieves, and rotates named secrets against a Backend.
// It is reentrant: operations on different accounts are independent, and
// operations on the same account are safe for concurrent use because the
// Backend (OS keychain or MemoryBackend) serializes its own access.
type Vault struct {
	service string
	backend Backend
}

// New constructs a Vault backed by the real OS keychain, addressed under
// the given service name (e.g. "GoogleMapsListComparator").
func New(service string) *Vault {
	return &Vault{service: service, backend: keyringBackend{}}
}

// NewWithBackend constructs a Vault against an explicit Backend, for
// tests that want to avoid the OS keychain entirely.
func NewWithBackend(service string, backend Backend) *Vault {
	return &Vault{service: service, backend: backend}
}

// Ensure returns the material stored under account, generating and
// persisting 64 random bytes (base64-nopad encoded) if none exists yet.
// NoEntry from the backend is not an error here — it triggers creation.
func (v *Vault) Ensure(account string) (*secretmaterial.Material, Lifecycle, error) {
	raw, err := v.backend.Get(v.service, account)
	if err == nil {
		return secretmaterial.NewFromString(raw), Retrieved, nil
	}
	if err != ErrNotFound {
		return nil, 0, apperr.Keychain(err)
	}

	generated, err := generateSecret()
	if err != nil {
		return nil, 0, apperr.Keychain(err)
	}
	if err := v.backend.Set(v.service, account, generated); err != nil {
		return nil, 0, apperr.Keychain(err)
	}
	return secretmaterial.NewFromString(generated), Created, nil
}

// Rotate always regenerates and persists fresh material for account,
// regardless of whether a prior value existed.
func (v *Vault) Rotate(account string) (*secretmaterial.Material, Lifecycle, error) {
	generated, err := generateSecret()
	if err != nil {
		return nil, 0, apperr.Keychain(err)
	}
	if err := v.backend.Set(v.service, account, generated); err != nil {
		return nil, 0, apperr.Keychain(err)
	}
	return secretmaterial.NewFromString(generated), Rotated, nil
}

// Set stores value verbatim under account, unconditionally overwriting
// any prior value. Unlike Ensure/Rotate it does not generate random
// material — used by callers (the Token Provider) that persist a
// structured, non-random payload through the vault.
func (v *Vault) Set(account, value string) error {
	if err := v.backend.Set(v.service, account, value); err != nil {
		return apperr.Keychain(err)
	}
	return nil
}

// Delete removes the stored secret for account, if any. A missing entry
// is not an error.
func (v *Vault) Delete(account string) error {
	if err := v.backend.Delete(v.service, account); err != nil {
		return apperr.Keychain(err)
	}
	return nil
}

// Has reports whether the backend currently holds material for account.
func (v *Vault) Has(account string) bool {
	_, err := v.backend.Get(v.service, account)
	return err == nil
}

// generateSecret returns 64 CSPRNG bytes, base64-nopad encoded, matching
// the wire format persisted to the keychain.
func generateSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}
