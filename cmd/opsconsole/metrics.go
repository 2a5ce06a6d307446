package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/opsconsole"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Fetch the backend's metrics once and print the health summary",
	Long: `Fetch the metrics endpoint once and print what the dashboard would show.

Exits with an error when the fetch fails.

Example:
  opsconsole metrics
  opsconsole metrics --json`,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().Bool("json", false, "print the dashboard view as JSON")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	if err := e.console.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	view := e.console.View()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	printSummary(cmd.OutOrStdout(), view.Summary)
	return nil
}

func printSummary(out io.Writer, s *opsconsole.Summary) {
	if s == nil {
		fmt.Fprintln(out, "No metrics available.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "System\t%s\n", s.System)
	fmt.Fprintf(w, "CPU\t%s\t%s\n", formatPercent(s.CPUPercent), s.CPU)
	fmt.Fprintf(w, "Memory\t%s\t%s\n", formatPercent(s.MemoryPercent), s.Memory)
	fmt.Fprintf(w, "Sessions\t%.0f / %.0f\n", s.ActiveSessions, s.MaxSessions)
	fmt.Fprintf(w, "Requests\t%.0f\tavg %.0f ms\n", s.Requests, s.AvgResponseMs)
	fmt.Fprintf(w, "DB pool idle\t%.0f / %.0f\n", s.PoolIdle, s.PoolMax)
	fmt.Fprintf(w, "Threads\t%.0f\tpeak %.0f\n", s.LiveThreads, s.PeakThreads)
	fmt.Fprintf(w, "Uptime\t%s\n", s.Uptime)
	_ = w.Flush()
}

func formatPercent(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *p)
}
