package storage

import (
	"fmt"
	"strings"

	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage/badgerstore"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage/memory"
	"github.com/digitalfortress-tech/localstorage-slim/internal/storage/pebblestore"
	"github.com/rs/zerolog"
)

// Builder provides a fluent interface for opening a Backend
type Builder struct {
	config *Config
	log    zerolog.Logger
}

// NewBuilder creates a new Backend builder
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    logger.WithComponent("storage.builder"),
	}
}

// WithConfig sets the configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithDataDir sets the data directory (convenience method)
func (b *Builder) WithDataDir(dataDir string) *Builder {
	b.ensureConfig()
	b.config.DataDir = dataDir
	return b
}

// WithEngine sets the engine name (convenience method)
func (b *Builder) WithEngine(engine string) *Builder {
	b.ensureConfig()
	b.config.Engine = engine
	return b
}

// WithNamespace sets the namespace (convenience method)
func (b *Builder) WithNamespace(namespace string) *Builder {
	b.ensureConfig()
	b.config.Namespace = namespace
	return b
}

func (b *Builder) ensureConfig() {
	if b.config == nil {
		b.config = DefaultConfig()
	}
}

// Build opens the configured Backend
func (b *Builder) Build() (Backend, error) {
	b.ensureConfig()

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	engine := strings.ToLower(b.config.Engine)
	if engine == EngineMemory {
		return memory.New(), nil
	}

	paths, err := InitDirectories(b.config.DataDir, b.config.Namespace, engine)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize directories: %w", err)
	}

	var backend Backend
	switch engine {
	case EngineBadger:
		backend, err = badgerstore.Open(paths.EngineDir, badgerstore.Options{SyncWrites: b.config.SyncWrites})
	default:
		backend, err = pebblestore.Open(paths.EngineDir, pebblestore.Options{SyncWrites: b.config.SyncWrites})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s engine: %w", engine, err)
	}

	b.log.Debug().
		Str("engine", engine).
		Str("namespace", b.config.Namespace).
		Str("dir", paths.EngineDir).
		Msg("Backend opened")

	return backend, nil
}
