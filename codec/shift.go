package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/digitalfortress-tech/localstorage-slim/internal/envelope"
)

// scalarCount is the number of Unicode scalar values (code points minus
// surrogates). Shifting is done modulo this count so every offset is a
// bijection on valid runes.
const scalarCount = 0x110000 - 0x800

// Shift is a reversible per-code-point shift applied to the JSON encoding of
// a value. It is obfuscation, not encryption.
//
// For ASCII input the output is identical to adding the offset to each UTF-16
// code unit, which keeps values written by other implementations of the same
// format readable.
type Shift struct {
	// Default is the offset used when the secret is nil.
	Default int
}

// Encrypt JSON-encodes value and shifts every rune by the secret.
func (s Shift) Encrypt(value any, secret any) (string, error) {
	off, err := s.offset(secret)
	if err != nil {
		return "", err
	}

	data, err := envelope.MarshalValue(value)
	if err != nil {
		return "", err
	}
	return shiftRunes(string(data), off), nil
}

// Decrypt shifts every rune back and JSON-decodes the result.
func (s Shift) Decrypt(ciphertext string, secret any) (any, error) {
	off, err := s.offset(secret)
	if err != nil {
		return nil, err
	}

	plain := shiftRunes(ciphertext, -off)

	var v any
	if err := json.Unmarshal([]byte(plain), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCiphertext, err)
	}
	return v, nil
}

func (s Shift) offset(secret any) (int, error) {
	if secret == nil {
		return s.Default, nil
	}
	return Offset(secret)
}

// Offset converts a secret into a numeric shift. Numbers are truncated to
// integers, numeric strings are parsed, and any other string or byte slice
// contributes the sum of its code points.
func Offset(secret any) (int, error) {
	switch v := secret.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v % scalarCount), nil
	case uint:
		return int(v % scalarCount), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v % scalarCount), nil
	case uint64:
		return int(v % scalarCount), nil
	case float32:
		return floatOffset(float64(v), secret)
	case float64:
		return floatOffset(v, secret)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n % scalarCount), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, UnsupportedSecretError{Secret: secret}
		}
		return floatOffset(f, secret)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, nil
		}
		return runeSum(v), nil
	case []byte:
		return runeSum(string(v)), nil
	default:
		return 0, UnsupportedSecretError{Secret: secret}
	}
}

func floatOffset(f float64, secret any) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, UnsupportedSecretError{Secret: secret}
	}
	return int(math.Mod(math.Trunc(f), scalarCount)), nil
}

func runeSum(s string) int {
	sum := 0
	for _, r := range s {
		sum = (sum + int(r)) % scalarCount
	}
	return sum
}

func shiftRunes(s string, off int) string {
	off %= scalarCount
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		idx := scalarIndex(r) + off
		idx %= scalarCount
		if idx < 0 {
			idx += scalarCount
		}
		b.WriteRune(scalarFromIndex(idx))
	}
	return b.String()
}

func scalarIndex(r rune) int {
	if r < 0xD800 {
		return int(r)
	}
	return int(r) - 0x800
}

func scalarFromIndex(i int) rune {
	if i < 0xD800 {
		return rune(i)
	}
	return rune(i + 0x800)
}
