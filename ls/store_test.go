package ls

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalfortress-tech/localstorage-slim/codec"
	"github.com/digitalfortress-tech/localstorage-slim/internal/metrics"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage/memory"
	"github.com/digitalfortress-tech/localstorage-slim/internal/test"
)

var epoch = time.UnixMilli(1615476122549)

// newTestStore returns a store over an inspectable memory backend and a
// fake clock.
func newTestStore(t *testing.T, mutate ...func(*Config)) (*Store, Backend, *test.Clock) {
	t.Helper()
	backend := NewMemoryBackend()
	cfg := DefaultConfig()
	cfg.Storage = backend
	for _, m := range mutate {
		m(&cfg)
	}

	clock := test.NewClock(epoch)
	s := New(cfg)
	s.now = clock.Now
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, backend, clock
}

func rawItem(t *testing.T, backend Backend, key string) (string, bool) {
	t.Helper()
	raw, ok, err := backend.GetItem(key)
	require.NoError(t, err)
	return raw, ok
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "string", value: "value", want: "value"},
		{name: "number", value: 14.5, want: 14.5},
		{name: "integer", value: 42, want: float64(42)},
		{name: "bool", value: true, want: true},
		{name: "null", value: nil, want: nil},
		{name: "array", value: []any{"Apple", 13}, want: []any{"Apple", float64(13)}},
		{name: "object", value: map[string]any{"a": "b", "n": []any{1.5}}, want: map[string]any{"a": "b", "n": []any{1.5}}},
		{name: "struct drops omitted fields", value: struct {
			Name  string `json:"name"`
			Extra string `json:"extra,omitempty"`
		}{Name: "Clark"}, want: map[string]any{"name": "Clark"}},
		{name: "time as string", value: epoch.UTC(), want: epoch.UTC().Format(time.RFC3339Nano)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "key", tt.value))
			assert.Equal(t, tt.want, s.Get(ctx, "key"))
		})
	}
}

func TestStore_StoredFormat(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "bare", "value"))
	raw, _ := rawItem(t, backend, "bare")
	assert.Equal(t, `"value"`, raw)

	require.NoError(t, s.Set(ctx, "ttl", "value1", TTL(3*time.Second)))
	raw, _ = rawItem(t, backend, "ttl")
	assert.Equal(t, `{"\u0000":"value1","ttl":1615476125549}`, raw)
}

func TestStore_Get_Absent(t *testing.T) {
	s, backend, _ := newTestStore(t)
	require.NoError(t, backend.SetItem("empty", ""))

	assert.Nil(t, s.Get(context.Background(), "missing"))
	assert.Nil(t, s.Get(context.Background(), "empty"))
}

func TestStore_Get_ForeignValue(t *testing.T) {
	s, backend, _ := newTestStore(t)
	require.NoError(t, backend.SetItem("foreign", "value3"))

	assert.Equal(t, "value3", s.Get(context.Background(), "foreign"))
	assert.Equal(t, "value3", s.Get(context.Background(), "foreign", Decrypt(true)))
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", "hello", TTL(time.Second)))
	assert.Equal(t, "hello", s.Get(ctx, "k"))

	clock.Advance(time.Second)
	assert.Equal(t, "hello", s.Get(ctx, "k"), "expiry is strict")

	clock.Advance(100 * time.Millisecond)
	assert.Nil(t, s.Get(ctx, "k"))

	_, ok := rawItem(t, backend, "k")
	assert.False(t, ok, "expired entry should be removed on read")
}

func TestStore_TTLExpiry_WallClock(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps")
	}
	ctx := context.Background()
	backend := NewMemoryBackend()
	cfg := DefaultConfig()
	cfg.Storage = backend
	s := New(cfg)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", "hello", TTL(time.Second)))
	assert.Equal(t, "hello", s.Get(ctx, "k"))

	time.Sleep(1100 * time.Millisecond)
	assert.Nil(t, s.Get(ctx, "k"))

	_, ok, err := backend.GetItem("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_TTLPrecedence(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := newTestStore(t, func(c *Config) {
		c.TTL = 10 * time.Second
	})

	require.NoError(t, s.Set(ctx, "global", "g"))
	require.NoError(t, s.Set(ctx, "local", "l", TTL(time.Second)))
	require.NoError(t, s.Set(ctx, "none", "n", NoTTL()))

	raw, _ := rawItem(t, backend, "none")
	assert.Equal(t, `"n"`, raw)

	clock.Advance(2 * time.Second)
	assert.Equal(t, "g", s.Get(ctx, "global"))
	assert.Nil(t, s.Get(ctx, "local"))

	clock.Advance(time.Hour)
	assert.Nil(t, s.Get(ctx, "global"))
	assert.Equal(t, "n", s.Get(ctx, "none"))
}

func TestStore_UserTTLFieldIsNotAnEnvelope(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	value := map[string]any{"x": 1, "ttl": 3}
	require.NoError(t, s.Set(ctx, "a", value))

	clock.Advance(time.Hour)
	assert.Equal(t, map[string]any{"x": float64(1), "ttl": float64(3)}, s.Get(ctx, "a"))

	require.NoError(t, s.Flush(ctx, true))
	assert.NotNil(t, s.Get(ctx, "a"))
}

func TestStore_Encryption(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "default", "value", Encrypt(true)))
	raw, _ := rawItem(t, backend, "default")
	assert.Equal(t, `"mÁ¬·À°m"`, raw)

	require.NoError(t, s.Set(ctx, "secret", "value", Encrypt(true), Secret(83)))
	raw, _ = rawItem(t, backend, "secret")
	assert.Equal(t, `"uÉ´¿È¸u"`, raw)

	assert.Equal(t, "value", s.Get(ctx, "default", Decrypt(true)))
	assert.Equal(t, "value", s.Get(ctx, "default", Encrypt(true)))
	assert.Equal(t, "value", s.Get(ctx, "secret", Decrypt(true), Secret(83)))
	assert.Equal(t, "mÁ¬·À°m", s.Get(ctx, "default"), "decryption is off by default")
}

func TestStore_Encryption_WrongSecret(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", "value", Encrypt(true), Secret(83)))

	var got any
	assert.NotPanics(t, func() {
		got = s.Get(ctx, "k", Decrypt(true), Secret(5))
	})
	assert.NotEqual(t, "value", got)
	assert.Equal(t, "uÉ´¿È¸u", got)
}

func TestStore_Encryption_GlobalConfig(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t, func(c *Config) {
		c.Encrypt = true
		c.Secret = "correct horse"
	})

	obj := map[string]any{"name": "Clark kent", "abilities": []any{"heat vision", "speed"}}
	require.NoError(t, s.Set(ctx, "hero", obj))

	raw, _ := rawItem(t, backend, "hero")
	assert.NotContains(t, raw, "Clark")
	assert.Equal(t, obj, s.Get(ctx, "hero"))
	assert.IsType(t, "", s.Get(ctx, "hero", Decrypt(false)))
}

func TestStore_EncryptionDoesNotTouchTTL(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", []any{"Apple", 13}, TTL(time.Second), Encrypt(true)))

	raw, _ := rawItem(t, backend, "k")
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, float64(epoch.Add(time.Second).UnixMilli()), stored["ttl"])
	assert.Equal(t, "¦m\u008c»»·°mw|~¨", stored["\u0000"])

	assert.Equal(t, []any{"Apple", float64(13)}, s.Get(ctx, "k", Decrypt(true)))

	clock.Advance(2 * time.Second)
	assert.Nil(t, s.Get(ctx, "k", Decrypt(true), Secret("wrong")))
}

func TestStore_CustomCodec(t *testing.T) {
	ctx := context.Background()
	upper := codec.Funcs{
		EncryptFunc: func(value any, secret any) (string, error) {
			return "enc:" + value.(string), nil
		},
		DecryptFunc: func(ciphertext string, secret any) (any, error) {
			if len(ciphertext) < 4 || ciphertext[:4] != "enc:" {
				return nil, codec.ErrNotCiphertext
			}
			return ciphertext[4:], nil
		},
	}
	s, backend, _ := newTestStore(t, func(c *Config) {
		c.Encrypter = upper.Encrypt
		c.Decrypter = upper.Decrypt
	})

	require.NoError(t, s.Set(ctx, "k", "value", Encrypt(true)))
	raw, _ := rawItem(t, backend, "k")
	assert.Equal(t, `"enc:value"`, raw)
	assert.Equal(t, "value", s.Get(ctx, "k", Decrypt(true)))

	require.NoError(t, s.Set(ctx, "plain", "value"))
	assert.Equal(t, "value", s.Get(ctx, "plain", Decrypt(true)), "failed decryption returns the stored value")

	require.NoError(t, s.Set(ctx, "aead", "value", WithCodec(codec.AEAD{}), Encrypt(true), Secret("k")))
	assert.Equal(t, "value", s.Get(ctx, "aead", WithCodec(codec.AEAD{}), Decrypt(true), Secret("k")))
}

func TestStore_CodecPanicsAreContained(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	boom := codec.Funcs{
		EncryptFunc: func(any, any) (string, error) { panic("boom") },
		DecryptFunc: func(string, any) (any, error) { panic("boom") },
	}

	err := s.Set(ctx, "k", "value", WithCodec(boom), Encrypt(true))
	assert.ErrorIs(t, err, ErrSerialize)
	_, ok := rawItem(t, backend, "k")
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "cipher"))
	assert.Equal(t, "cipher", s.Get(ctx, "k", WithCodec(boom), Decrypt(true)))
}

func TestStore_Set_Errors(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	assert.ErrorIs(t, s.Set(ctx, "", "value"), ErrInvalidKey)

	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	for name, value := range map[string]any{
		"channel":  make(chan int),
		"infinity": math.Inf(1),
		"cycle":    cyclic,
	} {
		t.Run(name, func(t *testing.T) {
			err := s.Set(ctx, "bad", value, TTL(time.Second))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSerialize))

			var serr SerializeError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, "bad", serr.Key)

			_, ok := rawItem(t, backend, "bad")
			assert.False(t, ok, "storage must be left unmodified")
		})
	}
}

func TestStore_Flush(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := newTestStore(t)

	require.NoError(t, s.Set(ctx, "short", "a", TTL(time.Second)))
	require.NoError(t, s.Set(ctx, "long", "b", TTL(time.Hour)))
	require.NoError(t, s.Set(ctx, "forever", "c"))
	require.NoError(t, backend.SetItem("foreign", "value3"))

	clock.Advance(2 * time.Second)
	require.NoError(t, s.Flush(ctx, false))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"long", "forever", "foreign"}, keys)

	require.NoError(t, s.Flush(ctx, true))

	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"forever", "foreign"}, keys)
}

func TestStore_FlushOnFirstUse(t *testing.T) {
	backend := NewMemoryBackend()
	past := epoch.Add(-time.Minute).UnixMilli()
	future := epoch.Add(time.Minute).UnixMilli()

	require.NoError(t, backend.SetItem("stale", `{"\u0000":"old","ttl":`+jsonInt(past)+`}`))
	require.NoError(t, backend.SetItem("fresh", `{"\u0000":"new","ttl":`+jsonInt(future)+`}`))
	require.NoError(t, backend.SetItem("raw", "value3"))

	cfg := DefaultConfig()
	cfg.Storage = backend
	s := New(cfg)
	s.now = test.NewClock(epoch).Now
	defer s.Close()

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fresh", "raw"}, keys)
}

// racingBackend stores replacement under key right after the first read of
// key once armed, as a concurrent writer would.
type racingBackend struct {
	Backend
	key         string
	replacement string
	armed       bool
	once        sync.Once
}

func (b *racingBackend) GetItem(key string) (string, bool, error) {
	raw, ok, err := b.Backend.GetItem(key)
	if b.armed && key == b.key {
		b.once.Do(func() {
			_ = b.Backend.SetItem(b.key, b.replacement)
		})
	}
	return raw, ok, err
}

func TestStore_ExpiredRemovalKeepsConcurrentWrite(t *testing.T) {
	past := epoch.Add(-time.Minute).UnixMilli()
	stale := `{"\u0000":"old","ttl":` + jsonInt(past) + `}`

	tests := []struct {
		name string
		run  func(ctx context.Context, s *Store)
	}{
		{name: "flush", run: func(ctx context.Context, s *Store) {
			require.NoError(t, s.Flush(ctx, false))
		}},
		{name: "get", run: func(ctx context.Context, s *Store) {
			assert.Nil(t, s.Get(ctx, "k"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			racing := &racingBackend{Backend: NewMemoryBackend(), key: "k", replacement: `"fresh"`}
			s, _, _ := newTestStore(t, func(c *Config) {
				c.Storage = racing
			})

			_, err := s.Keys(ctx)
			require.NoError(t, err)
			require.NoError(t, racing.Backend.SetItem("k", stale))
			racing.armed = true

			tt.run(ctx, s)

			raw, ok := rawItem(t, racing.Backend, "k")
			require.True(t, ok)
			assert.Equal(t, `"fresh"`, raw)
			assert.Equal(t, "fresh", s.Get(ctx, "k"))
		})
	}
}

func TestStore_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "a", 1))
	require.NoError(t, s.Set(ctx, "b", 2))
	require.NoError(t, backend.SetItem("foreign", "x"))

	require.NoError(t, s.Remove(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "missing"))
	assert.Nil(t, s.Get(ctx, "a"))
	assert.Equal(t, float64(2), s.Get(ctx, "b"))

	require.NoError(t, s.Clear(ctx))
	keys, err := backend.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_FallbackToMemory(t *testing.T) {
	backends := map[string]Backend{
		"failing":   test.FailingBackend{},
		"panicking": test.PanickingBackend{},
	}

	for name, broken := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _, clock := newTestStore(t, func(c *Config) {
				c.Storage = broken
			})

			require.Error(t, s.Fallback(ctx))

			require.NoError(t, s.Set(ctx, "k", "value", TTL(time.Second), Encrypt(true)))
			assert.Equal(t, "value", s.Get(ctx, "k", Decrypt(true)))

			require.NoError(t, s.Set(ctx, "keep", "x"))
			clock.Advance(2 * time.Second)
			require.NoError(t, s.Flush(ctx, false))

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"keep"}, keys)

			require.IsType(t, &memory.Store{}, s.backend)
			mem := s.backend.(*memory.Store)
			assert.Equal(t, 1, mem.Len())

			require.NoError(t, s.Clear(ctx))
			assert.Nil(t, s.Get(ctx, "keep"))
			assert.Zero(t, mem.Len())
		})
	}
}

type closeTrackingBackend struct {
	test.FailingBackend
	closed bool
}

func (b *closeTrackingBackend) Close() error {
	b.closed = true
	return nil
}

func TestStore_FallbackKeepsUserBackendOpen(t *testing.T) {
	ctx := context.Background()
	broken := &closeTrackingBackend{}
	s, _, _ := newTestStore(t, func(c *Config) {
		c.Storage = broken
	})

	require.Error(t, s.Fallback(ctx))
	assert.False(t, broken.closed)

	require.NoError(t, s.Close())
	assert.False(t, broken.closed)
}

func TestStore_DefaultBackendUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = test.UnwritableDir(t)
	s := New(cfg)
	defer s.Close()

	ctx := context.Background()
	assert.Error(t, s.Fallback(ctx))
	require.NoError(t, s.Set(ctx, "k", "v"))
	assert.Equal(t, "v", s.Get(ctx, "k"))
}

func TestStore_PersistentEngines(t *testing.T) {
	for _, engine := range []string{EnginePebble, EngineBadger} {
		t.Run(engine, func(t *testing.T) {
			ctx := context.Background()
			cfg := DefaultConfig()
			cfg.Engine = engine
			cfg.DataDir = test.TempDir(t)
			cfg.Namespace = "app"

			s := New(cfg)
			require.NoError(t, s.Fallback(ctx))
			require.NoError(t, s.Set(ctx, "k", map[string]any{"v": "persisted"}))
			require.NoError(t, s.Close())

			reopened := New(cfg)
			defer reopened.Close()
			assert.Equal(t, map[string]any{"v": "persisted"}, reopened.Get(ctx, "k"))
		})
	}
}

func TestStore_Configure(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	s.Configure(func(c *Config) {
		c.Encrypt = true
		c.Secret = 83
	})
	assert.True(t, s.Config().Encrypt)

	require.NoError(t, s.Set(ctx, "k", "value"))
	raw, _ := rawItem(t, backend, "k")
	assert.Equal(t, `"uÉ´¿È¸u"`, raw)
	assert.Equal(t, "value", s.Get(ctx, "k"))
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, "k", "v"))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set(ctx, "k", "v"), ErrClosed)
	assert.ErrorIs(t, s.Flush(ctx, true), ErrClosed)
	assert.ErrorIs(t, s.Remove(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, s.Clear(ctx), ErrClosed)
	assert.Nil(t, s.Get(ctx, "k"))

	_, err := s.Keys(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	s, backend, clock := newTestStore(t, func(c *Config) {
		c.Registerer = registry
	})

	require.NoError(t, s.Set(ctx, "k", "v", TTL(time.Second)))
	require.NoError(t, backend.SetItem("foreign", "value3"))
	s.Get(ctx, "k")
	s.Get(ctx, "foreign")
	clock.Advance(2 * time.Second)
	s.Get(ctx, "k")

	count, err := testutil.GatherAndCount(registry, metrics.MetricOperationsTotal)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)

	count, err = testutil.GatherAndCount(registry, metrics.MetricDecodeFallbacksTotal)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A second store on the same registry reuses the registered collectors.
	other := New(Config{Storage: NewMemoryBackend(), Registerer: registry})
	defer other.Close()
	require.NoError(t, other.Set(ctx, "k", "v"))
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
