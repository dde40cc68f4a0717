// Package pebblestore is the default persistent backing store, built on
// Pebble. Each namespace gets its own database directory.
package pebblestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("pebblestore: store closed")

// Options tunes the Pebble store
type Options struct {
	// SyncWrites fsyncs every mutation before returning
	SyncWrites bool
}

// Store is a backing store persisted in a Pebble database
type Store struct {
	db     *pebble.DB
	wo     *pebble.WriteOptions
	dir    string
	log    zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the database in dir
func Open(dir string, opts Options) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open Pebble DB: %w", err)
	}

	wo := pebble.NoSync
	if opts.SyncWrites {
		wo = pebble.Sync
	}

	return &Store{
		db:  db,
		wo:  wo,
		dir: dir,
		log: logger.WithComponent("storage.pebble"),
	}, nil
}

// GetItem returns the value stored under key
func (s *Store) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}

	valueBytes, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()

	// string() copies, so the value outlives the closer
	return string(valueBytes), true, nil
}

// SetItem stores value under key
func (s *Store) SetItem(key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.db.Set([]byte(key), []byte(value), s.wo); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// RemoveItem deletes key
func (s *Store) RemoveItem(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.db.Delete([]byte(key), s.wo); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Clear deletes every key in a single batch
func (s *Store) Clear() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	keys, err := s.keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, k := range keys {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return fmt.Errorf("failed to stage delete: %w", err)
		}
	}

	if err := batch.Commit(s.wo); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	s.log.Debug().Int("keys", len(keys)).Str("dir", s.dir).Msg("Store cleared")
	return nil
}

// Keys returns every key in byte order
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.keys()
}

func (s *Store) keys() ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

// Close flushes and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		s.log.Error().Err(err).Str("dir", s.dir).Msg("Failed to close Pebble DB")
		return err
	}
	return nil
}
