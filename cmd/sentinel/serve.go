package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"PriceSentinel/internal/metrics"
	"PriceSentinel/internal/notifier"
	"PriceSentinel/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the price refresh scheduler, metrics endpoint and Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(parent context.Context, a *app) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := a.log
	log.Info().Str("version", Version).Msg("PriceSentinel starting")

	r, err := a.refresher(ctx)
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}

	health := metrics.NewHealth()
	opts := scheduler.Options{
		MarketInterval: a.cfg.MarketInterval(),
		OffInterval:    a.cfg.OffInterval(),
		Disabled:       a.cfg.Refresh.Disabled,
		Metrics:        a.metrics,
		Health:         health,
	}
	tn := a.notifier()
	if tn != nil {
		opts.DigestCron = a.cfg.Schedule.DigestCron
		opts.Digest = func(ctx context.Context) error {
			positions, err := s.FindAll(ctx)
			if err != nil {
				return err
			}
			return tn.SendDigest(ctx, positions)
		}
	}

	sched := scheduler.New(r, log, opts)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	srv := metrics.NewServer(a.cfg.Metrics.Addr, a.registry, health, log)
	srv.Start()

	if tn != nil {
		commands := notifier.NewCommands(sched, r, s)
		go tn.StartPolling(ctx, commands.Handle)
		log.Info().Msg("telegram polling started")
	} else {
		log.Info().Msg("telegram not configured, alerts and commands disabled")
	}

	log.Info().Msg("PriceSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received, stopping")
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := sched.Stop(stopCtx); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		log.Error().Err(err).Msg("scheduler did not stop cleanly")
	}
	cancel()
	if err := srv.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown")
	}
	log.Info().Msg("PriceSentinel stopped")
	return nil
}
