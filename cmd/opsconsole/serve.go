package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the console dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the opsconsole dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Poll the backend's metrics while the dashboard is open
  - Record history when a history driver is configured
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  opsconsole serve -c opsconsole.yaml
  opsconsole serve --config /etc/opsconsole/opsconsole.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	logger := e.logger

	logger.Info("config loaded",
		"base_url", e.cfg.BaseURL,
		"history", e.cfg.History.Driver,
	)
	if !e.tokens.Valid() {
		logger.Warn("no valid session token, admin endpoints may reject requests",
			"token_file", e.tokens.Path(),
		)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- e.console.Start(ctx)
	}()

	return waitForShutdown(ctx, errChan, logger)
}

// waitForShutdown waits for the server to stop on its own or, after ctx is
// cancelled, for at most shutdownTimeout.
func waitForShutdown(ctx context.Context, errChan <-chan error, logger *slog.Logger) error {
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
