package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound reports that the slot holds no value yet.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes a single opaque value.
type Store interface {
	// Read returns the stored value. Returns an error wrapping ErrNotFound if
	// nothing has been written yet.
	Read(ctx context.Context) (string, error)

	// Write persists the value, overwriting any previous one. Returns error if
	// the backend is read-only or the write could not be made durable.
	Write(ctx context.Context, value string) error
}
