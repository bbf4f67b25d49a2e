package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the value in OS-native secure credential storage.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the value from the system keyring.
func (k *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring service %s, user %s: %w", k.service, k.user, ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	if value == "" {
		return "", fmt.Errorf("empty keyring entry for service %s, user %s: %w", k.service, k.user, ErrNotFound)
	}

	return value, nil
}

// Write persists the value to the system keyring, overwriting any existing
// value. Writing "" removes the entry.
func (k *KeyringStore) Write(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if value == "" {
		if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}

	err := keyring.Set(k.service, k.user, value)
	if errors.Is(err, keyring.ErrSetDataTooBig) {
		return fmt.Errorf("auth state of %d bytes exceeds the keyring entry limit, use file or sqlite storage: %w", len(value), err)
	}
	return err
}
