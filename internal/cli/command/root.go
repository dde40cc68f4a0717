// Package command provides CLI command definitions for lsctl.
//
// It uses urfave/cli/v2 for command parsing. Every invocation opens the
// configured store, runs one command and closes it again.
package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/digitalfortress-tech/localstorage-slim/codec"
	"github.com/digitalfortress-tech/localstorage-slim/internal/config"
	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/digitalfortress-tech/localstorage-slim/internal/metrics"
	"github.com/digitalfortress-tech/localstorage-slim/internal/tracing"
	"github.com/digitalfortress-tech/localstorage-slim/internal/version"
	"github.com/digitalfortress-tech/localstorage-slim/ls"
)

const (
	metaStore     = "store"
	metaConfig    = "config"
	metaCollector = "collector"
	metaTracing   = "tracing"
)

// PrintVersion writes the build description. It is installed as
// cli.VersionPrinter by main.
func PrintVersion(c *cli.Context) {
	fmt.Fprintln(c.App.Writer, version.Get())
}

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "lsctl",
		Usage:   "Inspect and edit a localstorage-slim store",
		Version: version.Get().Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SetCommand(),
			GetCommand(),
			RemoveCommand(),
			ClearCommand(),
			FlushCommand(),
			KeysCommand(),
			SweepCommand(),
		},
		Before: setup,
		After:  teardown,
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{config.EnvPrefix + "CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "engine",
			Aliases: []string{"e"},
			Usage:   "Storage engine: pebble, badger, memory",
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Base directory for persistent engines",
		},
		&cli.StringFlag{
			Name:    "namespace",
			Aliases: []string{"n"},
			Usage:   "Namespace isolating this store's entries",
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: "Codec used when encrypting: shift, aead",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
	}
}

// setup loads configuration, initializes logging and tracing, and opens
// the store for the command being run.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracingCfg := tracing.DefaultTracingConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.Endpoint = cfg.Tracing.Endpoint
	tracingCfg.ExporterType = cfg.Tracing.Exporter
	tracingCfg.Insecure = cfg.Tracing.Insecure
	tracingCfg.SampleRatio = cfg.Tracing.SampleRatio
	tracingCfg.ServiceVersion = version.Get().Version
	tracingCfg.Engine = cfg.Storage.Engine
	tracingCfg.Namespace = cfg.Storage.Namespace
	provider, err := tracing.NewProvider(tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	collector := metrics.NewCollector()
	store := ls.New(storeConfig(cfg, collector))

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaStore] = store
	c.App.Metadata[metaCollector] = collector
	c.App.Metadata[metaTracing] = provider
	return nil
}

// teardown closes the store and flushes pending spans.
func teardown(c *cli.Context) error {
	var errs []error
	if store := GetStore(c); store != nil {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if provider, ok := c.App.Metadata[metaTracing].(*tracing.Provider); ok {
		if err := provider.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("engine") {
		cfg.Storage.Engine = c.String("engine")
	}
	if c.IsSet("data-dir") {
		cfg.Storage.DataDir = c.String("data-dir")
	}
	if c.IsSet("namespace") {
		cfg.Storage.Namespace = c.String("namespace")
	}
	if c.IsSet("codec") {
		cfg.Defaults.Codec = c.String("codec")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
}

// storeConfig translates application configuration into a store configuration.
func storeConfig(cfg *config.Config, collector *metrics.Collector) ls.Config {
	sc := cfg.StorageConfig()

	out := ls.DefaultConfig()
	out.TTL = cfg.Defaults.TTL
	out.Encrypt = cfg.Defaults.Encrypt
	out.Engine = sc.Engine
	out.DataDir = sc.DataDir
	out.Namespace = sc.Namespace
	out.SyncWrites = sc.SyncWrites
	out.Registerer = collector.GetRegistry()

	c := selectCodec(cfg.Defaults.Codec)
	out.Encrypter = c.Encrypt
	out.Decrypter = c.Decrypt
	if cfg.Defaults.Secret != "" {
		out.Secret = cfg.Defaults.Secret
	}
	return out
}

func selectCodec(name string) codec.Codec {
	if strings.EqualFold(name, "aead") {
		return codec.AEAD{}
	}
	return codec.Default()
}

// GetStore retrieves the store opened by the Before hook.
func GetStore(c *cli.Context) *ls.Store {
	if store, ok := c.App.Metadata[metaStore].(*ls.Store); ok {
		return store
	}
	return nil
}

// GetConfig retrieves the loaded configuration.
func GetConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return nil
}

// GetCollector retrieves the metrics collector the store reports into.
func GetCollector(c *cli.Context) *metrics.Collector {
	if collector, ok := c.App.Metadata[metaCollector].(*metrics.Collector); ok {
		return collector
	}
	return nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
