package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has never been set.
	ErrNotFound = errors.New("key not found")

	// ErrReadOnly is returned by Set on backends that cannot be written.
	ErrReadOnly = errors.New("storage is read-only")
)

// Store reads and writes string values by key.
//
// Values have no expiry of their own. Writes are last-write-wins per key.
type Store interface {
	// Get returns the stored value. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set persists the value, overwriting any previous one. Returns ErrReadOnly
	// if the backend is read-only (e.g., environment variables).
	Set(ctx context.Context, key, value string) error
}

// BatchSetter is implemented by stores that can persist several keys in one
// atomic operation. Either all values are written or none are.
type BatchSetter interface {
	SetMany(ctx context.Context, values map[string]string) error
}
