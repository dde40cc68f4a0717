// Package badgerstore is an alternate persistent backing store built on
// Badger, selected with the "badger" engine name.
package badgerstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("badgerstore: store closed")

// Options tunes the Badger store
type Options struct {
	// SyncWrites fsyncs every mutation before returning
	SyncWrites bool
}

// Store is a backing store persisted in a Badger database
type Store struct {
	db     *badger.DB
	log    zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the database in dir
func Open(dir string, opts Options) (*Store, error) {
	log := logger.WithComponent("storage.badger")

	bopts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{log: log}).
		WithSyncWrites(opts.SyncWrites).
		WithDetectConflicts(false)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// GetItem returns the value stored under key
func (s *Store) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("badger: get: %w", err)
	}

	return string(value), true, nil
}

// SetItem stores value under key
func (s *Store) SetItem(key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// RemoveItem deletes key
func (s *Store) RemoveItem(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear drops every key
func (s *Store) Clear() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("badger: drop all: %w", err)
	}
	return nil
}

// Keys returns every key in byte order
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: iterate keys: %w", err)
	}
	return keys, nil
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// badgerLogger routes Badger's logging into zerolog
type badgerLogger struct {
	log zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
