package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/digitalfortress-tech/localstorage-slim/internal/storage"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LS_"

// Config represents the application configuration
type Config struct {
	// Storage configuration
	Storage StorageConfig `envPrefix:"STORAGE_" koanf:"storage"`

	// Defaults applied to every operation unless overridden per call
	Defaults DefaultsConfig `envPrefix:"DEFAULTS_" koanf:"defaults"`

	// Logging configuration
	Logging LoggingConfig `envPrefix:"LOGGING_" koanf:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `envPrefix:"METRICS_" koanf:"metrics"`

	// Tracing configuration
	Tracing TracingConfig `envPrefix:"TRACING_" koanf:"tracing"`

	// Sweeper configuration
	Sweep SweepConfig `envPrefix:"SWEEP_" koanf:"sweep"`

	// Configuration file path
	ConfigFile string `env:"CONFIG_FILE" koanf:"-"`
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	// Engine: "pebble", "badger", "memory"
	Engine string `env:"ENGINE" envDefault:"pebble" koanf:"engine"`

	// Data directory path (empty for the per-user cache directory)
	DataDir string `env:"DATA_DIR" koanf:"data_dir"`

	// Namespace isolating this application's entries
	Namespace string `env:"NAMESPACE" envDefault:"default" koanf:"namespace"`

	// Fsync every write
	SyncWrites bool `env:"SYNC_WRITES" envDefault:"true" koanf:"sync_writes"`
}

// DefaultsConfig holds the store-wide defaults
type DefaultsConfig struct {
	// Time to live for new entries (0 for none)
	TTL time.Duration `env:"TTL" envDefault:"0s" koanf:"ttl"`

	// Encrypt values on write and decrypt them on read
	Encrypt bool `env:"ENCRYPT" envDefault:"false" koanf:"encrypt"`

	// Secret handed to the codec (empty for the codec default)
	Secret string `env:"SECRET" koanf:"secret"`

	// Codec: "shift", "aead"
	Codec string `env:"CODEC" envDefault:"shift" koanf:"codec"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LEVEL" envDefault:"warn" koanf:"level"`

	// Log format: "json", "text"
	Format string `env:"FORMAT" envDefault:"text" koanf:"format"`

	// Log file path, "stdout" or "stderr"
	Output string `env:"OUTPUT" envDefault:"stderr" koanf:"output"`

	// Enable log rotation
	Rotation bool `env:"ROTATION" envDefault:"true" koanf:"rotation"`

	// Max log file size in MB
	MaxSize int `env:"MAX_SIZE" envDefault:"100" koanf:"max_size"`

	// Number of backup files to keep
	MaxBackups int `env:"MAX_BACKUPS" envDefault:"7" koanf:"max_backups"`

	// Max age in days
	MaxAge int `env:"MAX_AGE" envDefault:"30" koanf:"max_age"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable the Prometheus endpoint while sweeping
	Enabled bool `env:"ENABLED" envDefault:"false" koanf:"enabled"`

	// Metrics server address
	Addr string `env:"ADDR" envDefault:":9090" koanf:"addr"`

	// Metrics path
	Path string `env:"PATH" envDefault:"/metrics" koanf:"path"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	// Enable OpenTelemetry tracing
	Enabled bool `env:"ENABLED" envDefault:"false" koanf:"enabled"`

	// OTLP endpoint
	Endpoint string `env:"ENDPOINT" koanf:"endpoint"`

	// Exporter: "grpc", "http"
	Exporter string `env:"EXPORTER" envDefault:"grpc" koanf:"exporter"`

	// Disable TLS towards the collector
	Insecure bool `env:"INSECURE" envDefault:"false" koanf:"insecure"`

	// Fraction of traces recorded
	SampleRatio float64 `env:"SAMPLE_RATIO" envDefault:"1" koanf:"sample_ratio"`
}

// SweepConfig holds background sweeper configuration
type SweepConfig struct {
	// Interval between flushes of expired entries
	Interval time.Duration `env:"INTERVAL" envDefault:"10s" koanf:"interval"`
}

// Load loads configuration from multiple sources:
// 1. Default values
// 2. Environment variables
// 3. Configuration file (YAML), when configFile or LS_CONFIG_FILE is set
//
// Command line flags are applied by the caller afterwards.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	// Load from environment variables
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if configFile != "" {
		cfg.ConfigFile = configFile
	}

	// Load from config file if specified
	if cfg.ConfigFile != "" {
		if err := loadFromFile(cfg, cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Normalize paths
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = storage.DefaultDataDir()
	}
	cfg.Storage.DataDir = filepath.Clean(cfg.Storage.DataDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// StorageConfig converts the storage section into a backend configuration.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Engine:     strings.ToLower(c.Storage.Engine),
		DataDir:    c.Storage.DataDir,
		Namespace:  c.Storage.Namespace,
		SyncWrites: c.Storage.SyncWrites,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.StorageConfig().Validate(); err != nil {
		return err
	}

	if c.Defaults.TTL < 0 {
		return fmt.Errorf("default ttl cannot be negative: %s", c.Defaults.TTL)
	}

	validCodecs := map[string]bool{
		"shift": true,
		"aead":  true,
	}
	if !validCodecs[strings.ToLower(c.Defaults.Codec)] {
		return fmt.Errorf("invalid codec: %s", c.Defaults.Codec)
	}
	if strings.EqualFold(c.Defaults.Codec, "aead") && c.Defaults.Encrypt && c.Defaults.Secret == "" {
		return fmt.Errorf("aead codec requires a secret")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive: %s", c.Sweep.Interval)
	}

	return nil
}

// loadFromFile overlays the keys present in a YAML file onto cfg.
// Keys absent from the file keep their current values.
func loadFromFile(cfg *Config, path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}

	return k.Unmarshal("", cfg)
}
