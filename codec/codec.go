// Package codec defines the reversible value transforms a Store applies to
// payloads when encryption is enabled.
//
// A codec is a pair of functions. The encrypter receives the raw value (any
// JSON-serializable Go value) and returns a string; the decrypter receives
// that string and returns the raw value. Both receive the secret resolved for
// the call. Decrypting with a secret other than the one used to encrypt must
// never panic: it either yields a different value or returns an error, and the
// Store falls back to the stored ciphertext on error.
package codec

import (
	"errors"
	"fmt"
)

// DefaultSecret is the secret used by the default codec when none is given.
const DefaultSecret = 75

var (
	// ErrNotCiphertext is returned by a decrypter whose input was not produced
	// by the matching encrypter with the given secret.
	ErrNotCiphertext = errors.New("codec: input is not ciphertext for this secret")

	// ErrMissingSecret is returned by codecs that cannot derive a key without one.
	ErrMissingSecret = errors.New("codec: secret is required")
)

// EncryptFunc transforms a raw value into its stored string form.
type EncryptFunc func(value any, secret any) (string, error)

// DecryptFunc reverses an EncryptFunc.
type DecryptFunc func(ciphertext string, secret any) (any, error)

// Codec pairs an encrypter and a decrypter.
type Codec interface {
	Encrypt(value any, secret any) (string, error)
	Decrypt(ciphertext string, secret any) (any, error)
}

// Funcs adapts a pair of plain functions to the Codec interface.
type Funcs struct {
	EncryptFunc EncryptFunc
	DecryptFunc DecryptFunc
}

// Encrypt calls f.EncryptFunc.
func (f Funcs) Encrypt(value any, secret any) (string, error) {
	if f.EncryptFunc == nil {
		return "", errors.New("codec: no encrypter configured")
	}
	return f.EncryptFunc(value, secret)
}

// Decrypt calls f.DecryptFunc.
func (f Funcs) Decrypt(ciphertext string, secret any) (any, error) {
	if f.DecryptFunc == nil {
		return nil, errors.New("codec: no decrypter configured")
	}
	return f.DecryptFunc(ciphertext, secret)
}

// Default returns the default obfuscation codec.
func Default() Codec {
	return Shift{Default: DefaultSecret}
}

// UnsupportedSecretError reports a secret whose type a codec cannot use.
type UnsupportedSecretError struct {
	Secret any
}

func (e UnsupportedSecretError) Error() string {
	return fmt.Sprintf("codec: unsupported secret of type %T", e.Secret)
}
