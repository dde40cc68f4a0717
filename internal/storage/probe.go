package storage

import (
	"fmt"

	"github.com/digitalfortress-tech/localstorage-slim/internal/storage/memory"
)

// probeKey is read once to check that a backend answers at all.
const probeKey = "__localstorage_slim_probe__"

// Opened is the outcome of OpenOrFallback.
type Opened struct {
	Backend Backend
	// FallbackReason is non-nil when Backend is the memory substitute.
	FallbackReason error
}

// Fallback reports whether the memory substitute is in use.
func (o Opened) Fallback() bool {
	return o.FallbackReason != nil
}

// Probe performs one harmless read against b. Panics raised by the backend
// are reported as ErrUnavailable.
func Probe(b Backend) (err error) {
	if b == nil {
		return fmt.Errorf("%w: no backend", ErrUnavailable)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: probe panicked: %v", ErrUnavailable, r)
		}
	}()

	if _, _, err := b.GetItem(probeKey); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// OpenOrFallback calls open, probes the result, and substitutes a fresh
// memory store if either step fails. It never returns a nil Backend.
// A backend that fails the probe is closed only when owned is true.
func OpenOrFallback(open func() (Backend, error), owned bool) (opened Opened) {
	defer func() {
		if r := recover(); r != nil {
			opened = Opened{
				Backend:        memory.New(),
				FallbackReason: fmt.Errorf("%w: open panicked: %v", ErrUnavailable, r),
			}
		}
	}()

	b, err := open()
	if err != nil {
		return Opened{Backend: memory.New(), FallbackReason: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}

	if err := Probe(b); err != nil {
		if owned {
			_ = Close(b)
		}
		return Opened{Backend: memory.New(), FallbackReason: err}
	}

	return Opened{Backend: b}
}
