package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/culture-union/checkpulse/internal/api"
	"github.com/culture-union/checkpulse/internal/dispatch"
	"github.com/culture-union/checkpulse/internal/probes"
	"github.com/culture-union/checkpulse/internal/registry"
	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/internal/worker"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the CheckPulse server",
	Long: `Start the HTTP API server together with the local worker pool.
The server accepts check submissions, routes them to connected agents
or the durable local queue, and serves results.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	queue := storage.NewQueue(store)

	reg, err := registry.New(store)
	if err != nil {
		return fmt.Errorf("failed to initialize agent registry: %w", err)
	}

	disp := dispatch.New(store, queue, reg, dispatch.RandomPolicy{})
	server := api.New(cfg, store, queue, reg, disp)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	// Start the local worker pool
	pool := worker.NewPool(queue, store, probes.DefaultSet(cfg.Checks.Timeout), cfg.Workers.Count)
	pool.Start(ctx)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		fmt.Println("\nShutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		pool.Wait()
		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
