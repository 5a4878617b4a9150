// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package vault

import (
	"sync"

	"github.com/zalando/go-keyring"
)

// Backend is the minimal key-value contract a secret store must satisfy.
// Production code uses keyringBackend (OS keychain, via zalando/go-keyring);
// tests use NewMemoryBackend so the vault's lifecycle logic is exercised
// without touching the real OS keychain.
type Backend interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// keyringBackend adapts github.com/zalando/go-keyring to Backend.
type keyringBackend struct{}

func (keyringBackend) Get(service, account string) (string, error) {
	v, err := keyring.Get(service, account)
	if err == keyring.ErrNotFound {
		return "", ErrNotFound
	}
	return v, err
}

func (keyringBackend) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (keyringBackend) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

// MemoryBackend is an in-process Backend for tests.
type MemoryBackend struct {
	mu    sync.Mutex
	store map[string]string
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{store: make(map[string]string)}
}

func key(service, account string) string { return service + "\x00" + account }

func (b *MemoryBackend) Get(service, account string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.store[key(service, account)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (b *MemoryBackend) Set(service, account, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store[key(service, account)] = value
	return nil
}

func (b *MemoryBackend) Delete(service, account string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.store, key(service, account))
	return nil
}
