package opsconsole

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// historyConfig selects the history backend opened by [Console.Start].
type historyConfig struct {
	driver    string // "", "memory" or "sqlite"
	path      string
	retention time.Duration
	capacity  int
}

// consoleConfig holds mutable state during Console construction.
type consoleConfig struct {
	title           string
	baseURL         string
	metricsPath     string
	pollingInterval time.Duration
	fetchTimeout    time.Duration
	port            int
	logger          *slog.Logger
	tokens          TokenSource
	onUnauthorized  func()
	stateCallbacks  []func(State)
	history         historyConfig
}

// Option is a function that configures a [Console] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*consoleConfig) error

// WithBaseURL sets the root URL of the monitored backend. Both the admin API
// and the metrics endpoint are resolved against it. Required.
//
// Returns an error unless the URL is absolute http or https.
func WithBaseURL(raw string) Option {
	return func(cfg *consoleConfig) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("base URL must include a host")
		}
		cfg.baseURL = strings.TrimRight(raw, "/")
		return nil
	}
}

// WithMetricsPath sets the path of the metrics exposition endpoint relative
// to the base URL. Defaults to "/actuator/prometheus".
//
// Returns an error if the path does not start with "/".
func WithMetricsPath(path string) Option {
	return func(cfg *consoleConfig) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("metrics path must start with /, got %q", path)
		}
		cfg.metricsPath = path
		return nil
	}
}

// WithPollingInterval sets how often metrics are fetched while anyone is
// subscribed. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *consoleConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithFetchTimeout bounds each metrics request. Zero, the default, leaves the
// request bounded only by the transport.
//
// Returns an error if the duration is negative.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg *consoleConfig) error {
		if d < 0 {
			return errors.New("fetch timeout cannot be negative")
		}
		cfg.fetchTimeout = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *consoleConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Console instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *consoleConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "Ops Console".
func WithTitle(title string) Option {
	return func(cfg *consoleConfig) error {
		cfg.title = title
		return nil
	}
}

// WithTokenSource supplies the bearer token attached to every backend
// request, including the metrics fetch. Without it requests are sent
// unauthenticated.
func WithTokenSource(ts TokenSource) Option {
	return func(cfg *consoleConfig) error {
		if ts == nil {
			return errors.New("token source cannot be nil")
		}
		cfg.tokens = ts
		return nil
	}
}

// WithUnauthorizedHandler registers a function run whenever the backend
// answers 401. The token has already been cleared when it runs.
//
// Nil handlers are silently ignored.
func WithUnauthorizedHandler(fn func()) Option {
	return func(cfg *consoleConfig) error {
		cfg.onUnauthorized = fn
		return nil
	}
}

// WithStateCallback registers a function that is subscribed to the metrics
// broadcaster for as long as [Console.Start] runs.
//
// The callback receives every [State], starting with the current one. It runs
// synchronously on the polling goroutine and must not block; dispatch long
// work to a separate goroutine. Panics are recovered and reported as the
// latest state error.
//
// Multiple callbacks may be registered; they are notified in registration
// order. Nil callbacks are silently ignored.
func WithStateCallback(cb func(State)) Option {
	return func(cfg *consoleConfig) error {
		if cb == nil {
			return nil
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// WithMemoryHistory keeps the last capacity values of every dashboard gauge
// in memory. A non-positive capacity uses the store default.
func WithMemoryHistory(capacity int) Option {
	return func(cfg *consoleConfig) error {
		cfg.history = historyConfig{driver: "memory", capacity: capacity}
		return nil
	}
}

// WithSQLiteHistory persists dashboard gauges to the SQLite file at path,
// deleting values older than retention. Zero retention keeps everything.
//
// Returns an error if path is empty or retention is negative.
func WithSQLiteHistory(path string, retention time.Duration) Option {
	return func(cfg *consoleConfig) error {
		if path == "" {
			return errors.New("history path is required")
		}
		if retention < 0 {
			return errors.New("history retention cannot be negative")
		}
		cfg.history = historyConfig{driver: "sqlite", path: path, retention: retention}
		return nil
	}
}
