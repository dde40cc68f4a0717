package test

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ErrInjected is the error returned by FailingBackend.
var ErrInjected = errors.New("test: injected backend failure")

// TempDir creates a temporary directory for testing and returns its path.
// The directory is automatically cleaned up after the test.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "localstorage-slim-test-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Ignore cleanup errors in tests
	})
	return dir
}

// UnwritableDir returns a path under a regular file, so that any attempt to
// create a directory there fails.
func UnwritableDir(t *testing.T) string {
	t.Helper()
	dir := TempDir(t)
	file, err := os.CreateTemp(dir, "blocker-*")
	require.NoError(t, err)
	_ = file.Close()
	return file.Name() + "/data"
}

// FailingBackend is a backing store whose every operation fails, like a
// browser storage object that throws under a security policy.
type FailingBackend struct {
	Err error
}

func (b FailingBackend) err() error {
	if b.Err != nil {
		return b.Err
	}
	return ErrInjected
}

func (b FailingBackend) GetItem(string) (string, bool, error) { return "", false, b.err() }
func (b FailingBackend) SetItem(string, string) error         { return b.err() }
func (b FailingBackend) RemoveItem(string) error              { return b.err() }
func (b FailingBackend) Clear() error                         { return b.err() }
func (b FailingBackend) Keys() ([]string, error)              { return nil, b.err() }

// PanickingBackend panics on every read.
type PanickingBackend struct{ FailingBackend }

func (PanickingBackend) GetItem(string) (string, bool, error) { panic("storage access denied") }

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
