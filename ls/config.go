package ls

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/digitalfortress-tech/localstorage-slim/codec"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage/memory"
)

// Backend is the synchronous key-value store a Store persists into.
type Backend = storage.Backend

// Engine names for the default backend.
const (
	EnginePebble = storage.EnginePebble
	EngineBadger = storage.EngineBadger
	EngineMemory = storage.EngineMemory
)

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() Backend {
	return memory.New()
}

// Config is the persistent, store-wide configuration.
type Config struct {
	// TTL applied to entries written without a per-call TTL. Zero or
	// negative means entries never expire.
	TTL time.Duration

	// Encrypt passes values through Encrypter on Set. It also enables
	// decryption on Get.
	Encrypt bool

	// Decrypt passes stored values through Decrypter on Get.
	Decrypt bool

	// Encrypter and Decrypter form the codec. Nil selects the default
	// shift codec.
	Encrypter codec.EncryptFunc
	Decrypter codec.DecryptFunc

	// Secret is handed to the codec. Nil lets the codec use its default.
	Secret any

	// Storage, when set, is used instead of opening the default backend.
	// It is read once, on first use.
	Storage Backend

	// Engine, DataDir, Namespace and SyncWrites describe the default
	// backend. Ignored when Storage is set.
	Engine     string
	DataDir    string
	Namespace  string
	SyncWrites bool

	// Registerer receives the store's Prometheus metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the configuration a Store starts with.
func DefaultConfig() Config {
	def := codec.Default()
	sc := storage.DefaultConfig()
	return Config{
		Encrypter:  def.Encrypt,
		Decrypter:  def.Decrypt,
		Secret:     codec.DefaultSecret,
		Engine:     sc.Engine,
		DataDir:    sc.DataDir,
		Namespace:  sc.Namespace,
		SyncWrites: sc.SyncWrites,
	}
}

func (c Config) storageConfig() *storage.Config {
	sc := storage.DefaultConfig()
	if c.Engine != "" {
		sc.Engine = c.Engine
	}
	if c.DataDir != "" {
		sc.DataDir = c.DataDir
	}
	if c.Namespace != "" {
		sc.Namespace = c.Namespace
	}
	sc.SyncWrites = c.SyncWrites
	return sc
}

// Override holds per-call settings. Nil fields inherit from Config.
type Override struct {
	// TTL set to zero or a negative duration disables expiry for this call
	// even when Config.TTL is set.
	TTL       *time.Duration
	Encrypt   *bool
	Decrypt   *bool
	Encrypter codec.EncryptFunc
	Decrypter codec.DecryptFunc
	Secret    any
}

// Option sets one field of an Override.
type Option func(*Override)

// TTL expires the entry d after it is written. A non-positive d behaves
// like NoTTL.
func TTL(d time.Duration) Option {
	return func(o *Override) {
		o.TTL = &d
	}
}

// NoTTL stores the entry without expiry regardless of Config.TTL.
func NoTTL() Option {
	return TTL(0)
}

// Encrypt overrides Config.Encrypt for one call.
func Encrypt(enabled bool) Option {
	return func(o *Override) {
		o.Encrypt = &enabled
	}
}

// Decrypt overrides Config.Decrypt for one call.
func Decrypt(enabled bool) Option {
	return func(o *Override) {
		o.Decrypt = &enabled
	}
}

// Secret overrides Config.Secret for one call.
func Secret(secret any) Option {
	return func(o *Override) {
		o.Secret = secret
	}
}

// WithEncrypter overrides the encrypt function for one call.
func WithEncrypter(f codec.EncryptFunc) Option {
	return func(o *Override) {
		o.Encrypter = f
	}
}

// WithDecrypter overrides the decrypt function for one call.
func WithDecrypter(f codec.DecryptFunc) Option {
	return func(o *Override) {
		o.Decrypter = f
	}
}

// WithCodec overrides both codec functions for one call.
func WithCodec(c codec.Codec) Option {
	return func(o *Override) {
		o.Encrypter = c.Encrypt
		o.Decrypter = c.Decrypt
	}
}

func newOverride(opts []Option) Override {
	var o Override
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Effective is the resolved configuration for one operation.
type Effective struct {
	// TTL is zero when the entry must not expire.
	TTL       time.Duration
	Encrypt   bool
	Decrypt   bool
	Encrypter codec.EncryptFunc
	Decrypter codec.DecryptFunc
	Secret    any
}

// Resolve merges the per-call override onto the global configuration.
//
// A per-call TTL, Encrypt or Decrypt always wins, including explicit zero
// and false values. Decryption on read is requested by the first of: the
// per-call Decrypt, the per-call Encrypt, the global Decrypt or Encrypt.
func Resolve(global Config, local Override) Effective {
	def := codec.Default()
	eff := Effective{
		TTL:       global.TTL,
		Encrypt:   global.Encrypt,
		Decrypt:   global.Decrypt || global.Encrypt,
		Encrypter: def.Encrypt,
		Decrypter: def.Decrypt,
		Secret:    global.Secret,
	}

	switch {
	case local.Encrypter != nil:
		eff.Encrypter = local.Encrypter
	case global.Encrypter != nil:
		eff.Encrypter = global.Encrypter
	}
	switch {
	case local.Decrypter != nil:
		eff.Decrypter = local.Decrypter
	case global.Decrypter != nil:
		eff.Decrypter = global.Decrypter
	}

	if local.TTL != nil {
		eff.TTL = *local.TTL
	}
	if eff.TTL < 0 {
		eff.TTL = 0
	}

	if local.Encrypt != nil {
		eff.Encrypt = *local.Encrypt
	}

	switch {
	case local.Decrypt != nil:
		eff.Decrypt = *local.Decrypt
	case local.Encrypt != nil:
		eff.Decrypt = *local.Encrypt
	}

	if local.Secret != nil {
		eff.Secret = local.Secret
	}

	return eff
}
