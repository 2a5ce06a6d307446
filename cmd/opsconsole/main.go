// Package main is the entry point for the opsconsole CLI.
//
// opsconsole can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach
// plus one-shot commands against the backend's admin API.
//
// Usage:
//
//	opsconsole serve -c opsconsole.yaml     # Start the dashboard
//	opsconsole validate -c opsconsole.yaml  # Validate configuration
//	opsconsole login --id admin             # Store a session token
//	opsconsole metrics                      # Print the current health summary
//	opsconsole alerts list                  # List scheduled alerts
//	opsconsole version                      # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/opsconsole"
	"github.com/jpalmerr/opsconsole/config"
	"github.com/jpalmerr/opsconsole/internal/apiclient"
	"github.com/jpalmerr/opsconsole/internal/auth"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigFile = "opsconsole.yaml"

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "opsconsole",
	Short: "Operations console for a Spring-style backend",
	Long: `opsconsole watches a backend's Prometheus metrics and drives its admin API.

The dashboard shows CPU and memory health, sessions, request rates,
connection pool and thread figures, updated live over Server-Sent Events.
The remaining commands read user feedback and reports and manage push
notices and scheduled alerts.

Quick start:
  1. Create a config file (opsconsole.yaml)
  2. Run: opsconsole login --id <admin id>
  3. Run: opsconsole serve
  4. Open http://localhost:8080 in your browser

Example config:
  base_url: https://api.example.com
  poll_interval: 10s
  history:
    driver: sqlite
    path: ./data/history.db
    retention: 24h`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this opsconsole binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "opsconsole %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigFile, "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// env is everything a command needs to talk to the backend.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	tokens  *auth.Store
	console *opsconsole.Console
}

func (e *env) api() *apiclient.Client {
	return e.console.API()
}

// loadEnv reads the config file named by --config, opens the token file and
// builds the console. Nothing is started.
func loadEnv(cmd *cobra.Command) (*env, error) {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	tokens, err := config.OpenTokenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}

	opts := append(config.BuildOptions(cfg),
		opsconsole.WithLogger(logger),
		opsconsole.WithTokenSource(tokens),
	)
	c, err := opsconsole.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create console: %w", err)
	}

	return &env{cfg: cfg, logger: logger, tokens: tokens, console: c}, nil
}

// requireSession fails early when no usable token is stored, instead of
// letting the backend answer 401.
func (e *env) requireSession() error {
	if e.tokens.Token() == "" {
		return fmt.Errorf("not logged in, run: opsconsole login")
	}
	return nil
}
