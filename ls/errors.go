package ls

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned by Set for an empty key.
	ErrInvalidKey = errors.New("ls: key must not be empty")

	// ErrSerialize matches every SerializeError.
	ErrSerialize = errors.New("ls: value cannot be stored")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("ls: store is closed")
)

// SerializeError indicates that Set could not encode or encrypt a value.
// Storage is left unmodified.
type SerializeError struct {
	Key string
	Err error
}

func (e SerializeError) Error() string {
	return fmt.Sprintf("ls: cannot store value for key %s: %v", e.Key, e.Err)
}

func (e SerializeError) Unwrap() error {
	return e.Err
}

// Is reports ErrSerialize as a match.
func (e SerializeError) Is(target error) bool {
	return target == ErrSerialize
}
