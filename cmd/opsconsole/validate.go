package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/opsconsole/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an opsconsole configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  opsconsole validate -c opsconsole.yaml
  opsconsole validate --config /etc/opsconsole/opsconsole.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	history := cfg.History.Driver
	switch cfg.History.Driver {
	case config.HistorySQLite:
		history = fmt.Sprintf("sqlite (%s, retention %s)", cfg.History.Path, cfg.History.Retention.Duration())
	case config.HistoryMemory:
		history = fmt.Sprintf("memory (%d points per metric)", cfg.History.Capacity)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Backend:       %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Metrics:       %s%s\n", cfg.BaseURL, cfg.MetricsPath)
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Token file:    %s\n", cfg.TokenFile)
	fmt.Fprintf(out, "  History:       %s\n", history)

	return nil
}
