package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowcanon/canon/internal/association"
	"github.com/flowcanon/canon/internal/coordination"
	"github.com/flowcanon/canon/internal/parentresolve"
	"github.com/flowcanon/canon/internal/runtime"
	"github.com/flowcanon/canon/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var (
	metricsExporter    string
	metricsOTLPEndpoint string

	redisURL      string
	redisLockTTL  time.Duration
	redisChannel  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the association worker, projection worker, and parent-resolution sweep",
	Long: `run starts the three background loops under one cancellable
context and blocks until SIGINT or SIGTERM, at which point all three stop
together.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&metricsExporter, "metrics-exporter", "stdout", "Metrics exporter: stdout, otlp, or none")
	runCmd.Flags().StringVar(&metricsOTLPEndpoint, "otlp-endpoint", "", "OTLP collector endpoint (when --metrics-exporter=otlp)")

	runCmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL for cross-instance record locking and parked-record broadcast (omit to run single-instance)")
	runCmd.Flags().DurationVar(&redisLockTTL, "redis-lock-ttl", 30*time.Second, "TTL for the per-record advisory lock (requires --redis-url)")
	runCmd.Flags().StringVar(&redisChannel, "redis-channel", "canon:parent-resolve", "Pub/sub channel used to poke the parent-resolution sweep (requires --redis-url)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	provider, err := telemetry.NewMeterProvider(ctx, telemetry.ProviderConfig{
		Exporter:     metricsExporter,
		OTLPEndpoint: metricsOTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("canonctl: metrics provider: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.New(provider)
	if err != nil {
		return fmt.Errorf("canonctl: metrics instruments: %w", err)
	}

	pctx, sqlStore, err := buildContextWithMetrics(ctx, log, metrics)
	if err != nil {
		return err
	}
	if sqlStore != nil {
		defer sqlStore.Close()
	}

	// broadcaster and locker stay nil interfaces (not typed-nil pointers)
	// when --redis-url is unset, so the downstream nil checks in
	// parentresolve.Service and association.Worker see a true nil.
	var broadcaster parentresolve.Broadcaster
	var locker association.RecordLocker
	if redisURL != "" {
		rb, err := coordination.NewRedisBroadcaster(redisURL, redisChannel, log)
		if err != nil {
			return fmt.Errorf("canonctl: redis broadcaster: %w", err)
		}
		defer rb.Close()
		broadcaster = rb

		rl, err := coordination.NewLock(redisURL, redisLockTTL)
		if err != nil {
			return fmt.Errorf("canonctl: redis lock: %w", err)
		}
		defer rl.Close()
		locker = rl
	}

	log.Info("canonctl: starting", "models", len(pctx.Registry.Models()), "storage", storageBackend, "coordination", redisURL != "")
	sup := runtime.New(pctx, broadcaster, nil).WithLock(locker)
	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("canonctl: run: %w", err)
	}
	log.Info("canonctl: stopped")
	return nil
}
