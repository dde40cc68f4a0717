package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// Engine names accepted by Config.Engine.
const (
	EnginePebble = "pebble"
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// DefaultNamespace isolates entries when the caller does not choose a
// namespace, the way a browser scopes storage to one origin.
const DefaultNamespace = "default"

// Config holds configuration for opening a backing store
type Config struct {
	// Engine selects the implementation: "pebble", "badger" or "memory"
	Engine string

	// DataDir is the base directory for persistent engines
	DataDir string

	// Namespace scopes the data directory, analogous to a browser origin
	Namespace string

	// SyncWrites fsyncs every write on persistent engines
	SyncWrites bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine:     EnginePebble,
		DataDir:    DefaultDataDir(),
		Namespace:  DefaultNamespace,
		SyncWrites: true,
	}
}

// DefaultDataDir returns the per-user cache directory for stored entries,
// or a relative ./data when the platform has none.
func DefaultDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return "./data"
	}
	return filepath.Join(dir, "localstorage-slim")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Engine) {
	case EnginePebble, EngineBadger:
		if c.DataDir == "" {
			return ErrInvalidConfig{Field: "DataDir", Reason: "cannot be empty"}
		}
	case EngineMemory:
	default:
		return ErrInvalidConfig{Field: "Engine", Reason: "unknown engine " + c.Engine}
	}
	if c.Namespace == "" {
		return ErrInvalidConfig{Field: "Namespace", Reason: "cannot be empty"}
	}
	return nil
}

// ErrInvalidConfig indicates an invalid storage configuration
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return "invalid config: " + e.Field + ": " + e.Reason
}
