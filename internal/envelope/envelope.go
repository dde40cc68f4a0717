// Package envelope encodes the string stored under each key.
//
// A stored entry is either a bare JSON value or a JSON object of the form
//
//	{"\u0000": <value or ciphertext>, "ttl": <unix milliseconds>}
//
// The presence of the NUL-named apex field is the only discriminant. A user
// object that itself contains a NUL-named field is read back as an expiry
// envelope; that collision is part of the on-wire format and is not guarded.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Apex is the reserved field name tagging the payload of an expiry envelope.
const Apex = "\u0000"

// TTLField is the field holding the absolute expiry in unix milliseconds.
const TTLField = "ttl"

// Kind discriminates the two envelope shapes.
type Kind int

const (
	// Bare is a value stored without expiry metadata.
	Bare Kind = iota
	// WithExpiry is a value wrapped with an absolute expiry.
	WithExpiry
)

func (k Kind) String() string {
	switch k {
	case Bare:
		return "bare"
	case WithExpiry:
		return "with_expiry"
	default:
		return "unknown"
	}
}

// Envelope is the decoded form of one stored entry.
type Envelope struct {
	Kind Kind
	// Value is the payload. When the entry was written encrypted it is the
	// ciphertext string.
	Value any
	// ExpiresAt is the expiry in unix milliseconds. Only meaningful when
	// Kind is WithExpiry and HasDeadline is true.
	ExpiresAt int64
	// HasDeadline is false for expiry envelopes whose ttl field is missing or
	// not a number. Such entries never expire by time.
	HasDeadline bool
}

// NewBare wraps v without expiry.
func NewBare(v any) Envelope {
	return Envelope{Kind: Bare, Value: v}
}

// NewWithExpiry wraps v with an absolute expiry.
func NewWithExpiry(v any, expiresAt time.Time) Envelope {
	return Envelope{
		Kind:        WithExpiry,
		Value:       v,
		ExpiresAt:   expiresAt.UnixMilli(),
		HasDeadline: true,
	}
}

// Expired reports whether the entry has a deadline strictly before now.
func (e Envelope) Expired(now time.Time) bool {
	return e.Kind == WithExpiry && e.HasDeadline && now.UnixMilli() > e.ExpiresAt
}

// DecodeError reports a stored string that is not valid envelope JSON.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("envelope: decode %q: %v", truncate(e.Raw, 32), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MarshalValue JSON-encodes v without HTML escaping and without a trailing
// newline, matching the stored representation used by the browser library.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode renders e as the string to store.
func Encode(e Envelope) (string, error) {
	payload, err := MarshalValue(e.Value)
	if err != nil {
		return "", err
	}

	if e.Kind == Bare {
		return string(payload), nil
	}

	var b strings.Builder
	b.Grow(len(payload) + 32)
	b.WriteString(`{"\u0000":`)
	b.Write(payload)
	b.WriteString(`,"ttl":`)
	b.WriteString(strconv.FormatInt(e.ExpiresAt, 10))
	b.WriteByte('}')
	return b.String(), nil
}

// Decode parses a stored string.
func Decode(raw string) (Envelope, error) {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
			return Envelope{}, &DecodeError{Raw: raw, Err: err}
		}

		if payload, ok := fields[Apex]; ok {
			var v any
			if err := json.Unmarshal(payload, &v); err != nil {
				return Envelope{}, &DecodeError{Raw: raw, Err: err}
			}
			env := Envelope{Kind: WithExpiry, Value: v}
			env.ExpiresAt, env.HasDeadline = parseDeadline(fields[TTLField])
			return env, nil
		}
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return Envelope{}, &DecodeError{Raw: raw, Err: err}
	}
	return NewBare(v), nil
}

// parseDeadline floors fractional milliseconds so that the strict
// now > ttl comparison is unchanged for integer clocks.
func parseDeadline(raw json.RawMessage) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Floor(f)), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
