// Package ls persists JSON values in a synchronous key-value backend with
// optional expiry and a pluggable reversible codec.
//
// Entries are stored as strings, either as bare JSON or wrapped together
// with an absolute expiry. Reads never fail: absent, expired and unreadable
// entries come back as nil, and values that cannot be decoded come back in
// their most literal form.
package ls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/digitalfortress-tech/localstorage-slim/internal/envelope"
	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/digitalfortress-tech/localstorage-slim/internal/metrics"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage"
	"github.com/digitalfortress-tech/localstorage-slim/internal/tracing"
)

// Store is a storage facade over one backend. It is safe for concurrent use.
// The backend is opened lazily by the first operation.
type Store struct {
	mu  sync.RWMutex
	cfg Config

	initOnce  sync.Once
	backend   Backend
	owned     bool
	fallback  error
	namespace string
	closed    atomic.Bool

	// writeMu serialises backend writes, including the compare and remove
	// of expired entries.
	writeMu sync.Mutex

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}

	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.StoreMetrics
}

// New creates a Store with the given configuration.
func New(cfg Config) *Store {
	s := &Store{
		cfg:       cfg,
		namespace: cfg.storageConfig().Namespace,
		now:       time.Now,
		log:       logger.WithComponent("ls"),
	}
	if cfg.Registerer != nil {
		s.metrics = metrics.NewStoreMetrics(metrics.NewCollectorFor(cfg.Registerer))
	}
	return s
}

// NewDefault creates a Store with DefaultConfig.
func NewDefault() *Store {
	return New(DefaultConfig())
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Configure mutates the configuration. Storage and the default backend
// fields only take effect before the first operation.
func (s *Store) Configure(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

// Fallback returns the reason the in-memory backend replaced the configured
// one, or nil.
func (s *Store) Fallback(ctx context.Context) error {
	if _, err := s.ensureInit(ctx); err != nil {
		return err
	}
	return s.fallback
}

func (s *Store) ensureInit(ctx context.Context) (Backend, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.initOnce.Do(func() {
		cfg := s.Config()
		sc := cfg.storageConfig()

		open := func() (Backend, error) {
			return storage.NewBuilder().WithConfig(sc).Build()
		}
		engine := sc.Engine
		s.owned = true
		if cfg.Storage != nil {
			open = func() (Backend, error) { return cfg.Storage, nil }
			engine = "custom"
			s.owned = false
		}

		opened := storage.OpenOrFallback(open, s.owned)
		s.backend = opened.Backend
		s.fallback = opened.FallbackReason
		if opened.Fallback() {
			s.owned = true
			s.log.Warn().
				Err(opened.FallbackReason).
				Str("engine", engine).
				Msg("Backend unavailable, using in-memory store")
		} else {
			s.log.Debug().Str("engine", engine).Msg("Backend ready")
		}
		s.metrics.SetBackendFallback(engine, opened.Fallback())

		if _, err := s.flush(ctx, s.backend, false); err != nil {
			s.log.Debug().Err(err).Msg("Initial flush failed")
		}
	})

	if s.backend == nil {
		return nil, ErrClosed
	}
	return s.backend, nil
}

// Set stores value under key.
//
// The value is JSON encoded. With an effective TTL it is wrapped together
// with its expiry; with encryption enabled only the value is passed through
// the codec, never the expiry. If encoding or encryption fails a
// SerializeError is returned and nothing is written.
func (s *Store) Set(ctx context.Context, key string, value any, opts ...Option) (err error) {
	ctx, span := s.startSpan(ctx, metrics.OpSet, keyAttr(key))
	defer s.finish(metrics.OpSet, span, time.Now(), &err)

	if key == "" {
		return ErrInvalidKey
	}

	backend, err := s.ensureInit(ctx)
	if err != nil {
		return err
	}

	eff := Resolve(s.Config(), newOverride(opts))
	span.SetAttributes(
		attribute.Bool(tracing.AttrEncrypted, eff.Encrypt),
		attribute.Int64(tracing.AttrTTLMillis, eff.TTL.Milliseconds()),
	)

	payload := value
	if eff.Encrypt {
		ciphertext, err := encrypt(eff, value)
		if err != nil {
			return SerializeError{Key: key, Err: err}
		}
		payload = ciphertext
	}

	env := envelope.NewBare(payload)
	if eff.TTL > 0 {
		env = envelope.NewWithExpiry(payload, s.now().Add(eff.TTL))
	}

	raw, err := envelope.Encode(env)
	if err != nil {
		return SerializeError{Key: key, Err: err}
	}

	s.writeMu.Lock()
	err = backend.SetItem(key, raw)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("ls: set %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key, or nil when the key is absent or
// expired. An expired entry is removed unless it was overwritten in the
// meantime.
//
// Values are decoded with encoding/json semantics: numbers come back as
// float64, objects as map[string]any and arrays as []any.
//
// When decryption is requested and fails, the stored value is returned
// undecrypted. A stored string that is not JSON is returned as is.
func (s *Store) Get(ctx context.Context, key string, opts ...Option) any {
	ctx, span := s.startSpan(ctx, metrics.OpGet, keyAttr(key))
	start := time.Now()
	status := metrics.StatusMiss
	defer func() {
		s.metrics.RecordOperation(metrics.OpGet, status, time.Since(start))
		endSpan(span, status, nil)
	}()

	backend, err := s.ensureInit(ctx)
	if err != nil {
		return nil
	}

	raw, ok, err := backend.GetItem(key)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("Read failed")
		status = metrics.StatusError
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	env, err := envelope.Decode(raw)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("Stored value is not JSON, returning it unparsed")
		s.metrics.RecordDecodeFallback(metrics.ReasonParse)
		status = metrics.StatusHit
		return raw
	}

	if env.Expired(s.now()) {
		if _, err := s.removeIfUnchanged(backend, key, raw); err != nil {
			s.log.Debug().Err(err).Str("key", key).Msg("Failed to remove expired entry")
		}
		status = metrics.StatusExpired
		return nil
	}

	status = metrics.StatusHit
	eff := Resolve(s.Config(), newOverride(opts))
	if !eff.Decrypt {
		return env.Value
	}

	span.SetAttributes(attribute.Bool(tracing.AttrEncrypted, true))
	value, err := decrypt(eff, env.Value)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("Decryption failed, returning stored value")
		s.metrics.RecordDecodeFallback(metrics.ReasonDecrypt)
		return env.Value
	}
	return value
}

// Flush removes expired entries that carry an expiry. With force, every
// entry carrying an expiry is removed. Entries without expiry and entries
// that are not valid JSON are left untouched.
func (s *Store) Flush(ctx context.Context, force bool) (err error) {
	ctx, span := s.startSpan(ctx, metrics.OpFlush, attribute.Bool(tracing.AttrForce, force))
	defer s.finish(metrics.OpFlush, span, time.Now(), &err)

	backend, err := s.ensureInit(ctx)
	if err != nil {
		return err
	}

	removed, err := s.flush(ctx, backend, force)
	span.SetAttributes(attribute.Int(tracing.AttrRemoved, removed))
	return err
}

func (s *Store) flush(_ context.Context, backend Backend, force bool) (int, error) {
	keys, err := backend.Keys()
	if err != nil {
		return 0, fmt.Errorf("ls: list keys: %w", err)
	}

	now := s.now()
	var (
		removed int
		errs    []error
	)
	for _, key := range keys {
		raw, ok, err := backend.GetItem(key)
		if err != nil || !ok {
			continue
		}

		env, err := envelope.Decode(raw)
		if err != nil || env.Kind != envelope.WithExpiry {
			continue
		}
		if !force && !env.Expired(now) {
			continue
		}

		ok, err = s.removeIfUnchanged(backend, key, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("ls: remove %s: %w", key, err))
			continue
		}
		if ok {
			removed++
		}
	}

	reason := metrics.ReasonExpired
	if force {
		reason = metrics.ReasonForced
	}
	s.metrics.RecordFlushed(reason, removed)

	if removed > 0 {
		s.log.Debug().Int("removed", removed).Bool("force", force).Msg("Flushed entries")
	}

	return removed, errors.Join(errs...)
}

// removeIfUnchanged deletes key only if it still holds raw.
func (s *Store) removeIfUnchanged(backend Backend, key, raw string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, ok, err := backend.GetItem(key)
	if err != nil {
		return false, err
	}
	if !ok || current != raw {
		return false, nil
	}
	if err := backend.RemoveItem(key); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) (err error) {
	ctx, span := s.startSpan(ctx, metrics.OpRemove, keyAttr(key))
	defer s.finish(metrics.OpRemove, span, time.Now(), &err)

	backend, err := s.ensureInit(ctx)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	err = backend.RemoveItem(key)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("ls: remove %s: %w", key, err)
	}
	return nil
}

// Clear deletes every entry in the backend, including entries not written
// by this package.
func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, metrics.OpClear)
	defer s.finish(metrics.OpClear, span, time.Now(), &err)

	backend, err := s.ensureInit(ctx)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	err = backend.Clear()
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("ls: clear: %w", err)
	}
	return nil
}

// Keys lists every key in the backend.
func (s *Store) Keys(ctx context.Context) (keys []string, err error) {
	ctx, span := s.startSpan(ctx, metrics.OpKeys)
	defer s.finish(metrics.OpKeys, span, time.Now(), &err)

	backend, err := s.ensureInit(ctx)
	if err != nil {
		return nil, err
	}
	keys, err = backend.Keys()
	if err != nil {
		return nil, fmt.Errorf("ls: list keys: %w", err)
	}
	return keys, nil
}

// Close stops the sweeper and closes the backend if the Store opened it.
// Further operations return ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stopSweeper()

	// Prevent a later first use from opening the backend.
	s.initOnce.Do(func() {})

	if s.backend == nil || !s.owned {
		return nil
	}
	return storage.Close(s.backend)
}

// finish records metrics for an operation whose only outcomes are ok and error
func (s *Store) finish(operation string, span trace.Span, start time.Time, errp *error) {
	status := metrics.StatusOK
	if *errp != nil {
		status = metrics.StatusError
	}
	s.metrics.RecordOperation(operation, status, time.Since(start))
	endSpan(span, status, *errp)
}

func encrypt(eff Effective, value any) (ciphertext string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encrypter panicked: %v", r)
		}
	}()
	return eff.Encrypter(value, eff.Secret)
}

func decrypt(eff Effective, stored any) (value any, err error) {
	ciphertext, ok := stored.(string)
	if !ok {
		return nil, fmt.Errorf("stored %T is not ciphertext", stored)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decrypter panicked: %v", r)
		}
	}()
	return eff.Decrypter(ciphertext, eff.Secret)
}
