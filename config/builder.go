package config

import (
	"github.com/jpalmerr/opsconsole"
	"github.com/jpalmerr/opsconsole/internal/auth"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The logger and token source are not part of the file format; callers
// append [opsconsole.WithLogger] and [opsconsole.WithTokenSource] themselves.
func BuildOptions(cfg *Config) []opsconsole.Option {
	opts := []opsconsole.Option{
		opsconsole.WithTitle(cfg.Title),
		opsconsole.WithPort(cfg.Port),
		opsconsole.WithBaseURL(cfg.BaseURL),
		opsconsole.WithMetricsPath(cfg.MetricsPath),
		opsconsole.WithPollingInterval(cfg.PollInterval.Duration()),
	}

	if cfg.FetchTimeout != 0 {
		opts = append(opts, opsconsole.WithFetchTimeout(cfg.FetchTimeout.Duration()))
	}

	switch cfg.History.Driver {
	case HistoryMemory:
		opts = append(opts, opsconsole.WithMemoryHistory(cfg.History.Capacity))
	case HistorySQLite:
		opts = append(opts, opsconsole.WithSQLiteHistory(cfg.History.Path, cfg.History.Retention.Duration()))
	}

	return opts
}

// OpenTokenStore opens the session token file named by the configuration.
func OpenTokenStore(cfg *Config) (*auth.Store, error) {
	return auth.NewFileStore(cfg.TokenFile)
}
