package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/digitalfortress-tech/localstorage-slim/internal/envelope"
)

const aeadKeyInfo = "localstorage-slim/aead/v1"

// AEAD encrypts values with XChaCha20-Poly1305 under a key derived from the
// secret with HKDF-SHA256. Ciphertext is base64 (nonce || sealed box), so it
// stays a plain string in the backing store. A wrong secret fails
// authentication and yields ErrNotCiphertext.
type AEAD struct{}

// Encrypt seals the JSON encoding of value.
func (AEAD) Encrypt(value any, secret any) (string, error) {
	aead, err := newXChaCha(secret)
	if err != nil {
		return "", err
	}

	plaintext, err := envelope.MarshalValue(value)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("codec: generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value sealed by Encrypt.
func (AEAD) Decrypt(ciphertext string, secret any) (any, error) {
	aead, err := newXChaCha(secret)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCiphertext, err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrNotCiphertext)
	}

	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCiphertext, err)
	}

	var v any
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCiphertext, err)
	}
	return v, nil
}

func newXChaCha(secret any) (cipher.AEAD, error) {
	ikm, err := secretBytes(secret)
	if err != nil {
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(aeadKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("codec: derive key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

func secretBytes(secret any) ([]byte, error) {
	switch v := secret.(type) {
	case nil:
		return nil, ErrMissingSecret
	case string:
		if v == "" {
			return nil, ErrMissingSecret
		}
		return []byte(v), nil
	case []byte:
		if len(v) == 0 {
			return nil, ErrMissingSecret
		}
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return []byte(fmt.Sprint(v)), nil
	default:
		return nil, UnsupportedSecretError{Secret: secret}
	}
}
