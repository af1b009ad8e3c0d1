// ============================================================================
// Hash-Queue CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based entry point for running and talking to the queue
//
// Command Structure:
//   hashqueue                      # Root command
//   ├── run                        # Start the queue server
//   ├── submit                     # Submit a hash job to a running server
//   │   ├── --algorithm, -a       # md5 | sha1 | sha256 | sha512 | slow
//   │   ├── --input, -i           # Input string (or JSON with --json)
//   │   └── --wait                # Poll until the job is terminal
//   ├── job <id>                   # Show one job
//   ├── status                     # Queue statistics
//   ├── config get|set             # Read / patch runtime tunables
//   └── --config, -c / --env / --server
//
// run Command:
//   1. Load YAML config, .env file and HASHQUEUE_* overrides
//   2. Install the slog handler
//   3. Create and start Controller (loads history snapshot)
//   4. Serve HTTP API (+ /metrics, /ws/jobs) and optional gRPC health
//   5. On SIGINT/SIGTERM: NOT_SERVING → HTTP shutdown → Controller.Stop
//
// Every other command is an HTTP client of a running server.
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/hash-queue/internal/api"
	"github.com/ChuLiYu/hash-queue/internal/config"
	"github.com/ChuLiYu/hash-queue/internal/controller"
	"github.com/ChuLiYu/hash-queue/internal/health"
	"github.com/ChuLiYu/hash-queue/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

var (
	configFile string
	envFile    string
	serverURL  string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hashqueue",
		Short: "Hash-Queue: a bounded hash job queue with a tick-driven worker pool",
		Long: `Hash-Queue accepts hashing jobs over HTTP and runs them with:
- bounded admission (queue full → 429)
- tick-driven FIFO dispatch with a parallelism cap
- runtime-tunable interval / queue size / parallelism
- a 500-entry history of finished jobs`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional .env file with HASHQUEUE_* overrides")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL for client commands")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildJobCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildConfigCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the Hash-Queue server",
		Long:  "Start the controller, HTTP API and (optionally) the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, envFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	return cmd
}

// runServer blocks until ctx is cancelled, then shuts everything down.
func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	collector := metrics.NewCollector(true)
	ctrl, err := controller.New(controller.Options{
		Runtime:      cfg.Runtime(),
		JobTimeout:   cfg.Scheduler.JobTimeout,
		HistorySize:  cfg.Scheduler.HistorySize,
		SnapshotPath: cfg.Snapshot.Path,
		Metrics:      collector,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = collector.Handler()
	}

	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		ctrl.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	httpSrv := &http.Server{
		Handler:           api.NewRouter(ctrl, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var healthSrv *health.Server
	if cfg.GRPC.Enabled {
		grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			httpSrv.Close()
			ctrl.Stop(context.Background())
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
		}
		healthSrv = health.New()
		go func() {
			if err := healthSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		healthSrv.SetServing(true)
	}

	logger.Info("System started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping gracefully...")
	case runErr = <-errCh:
		logger.Error("Server failed, stopping", "error", runErr)
	}

	if healthSrv != nil {
		healthSrv.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Warn("Controller stopped with running jobs cancelled", "error", err)
	}
	if healthSrv != nil {
		healthSrv.Stop()
	}

	logger.Info("System stopped. Goodbye!")
	return runErr
}
