package command

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/digitalfortress-tech/localstorage-slim/internal/metrics"
)

// SweepCommand returns the sweep command.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Flush expired entries periodically until interrupted",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between flushes (defaults to the configured sweep interval)",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Serve Prometheus metrics while sweeping",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Metrics server address",
			},
		},
		Action: runSweep,
	}
}

func runSweep(c *cli.Context) error {
	store := GetStore(c)
	cfg := GetConfig(c)
	if store == nil || cfg == nil {
		return fmt.Errorf("store not initialized")
	}
	log := logger.WithComponent("lsctl")

	interval := cfg.Sweep.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled || c.Bool("metrics") {
		addr := cfg.Metrics.Addr
		if c.IsSet("metrics-addr") {
			addr = c.String("metrics-addr")
		}
		server := metrics.NewServer(addr, cfg.Metrics.Path, GetCollector(c).GetRegistry())
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := server.Stop(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to stop metrics server")
			}
		}()
		log.Info().Str("addr", server.Addr()).Msg("Serving metrics")
	}

	if err := store.Flush(ctx, false); err != nil {
		return err
	}

	store.StartSweeper(ctx, interval)
	<-ctx.Done()
	return nil
}
