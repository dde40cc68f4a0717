// Package storage defines the backing-store contract wrapped by the ls facade
// and opens the persistent engines behind it.
//
// A backing store is a synchronous string-to-string map with the same
// semantics as a browser's localStorage: reading a missing key is not an
// error, and clearing removes every key the store holds.
package storage

import (
	"errors"
	"io"
)

// ErrUnavailable indicates the backing store cannot be used.
var ErrUnavailable = errors.New("storage: backend unavailable")

// Backend is the contract every backing store satisfies.
type Backend interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(key string) (string, bool, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
	// Clear deletes every key.
	Clear() error
	// Keys returns every key currently stored.
	Keys() ([]string, error)
}

// Close closes b if it holds resources.
func Close(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
