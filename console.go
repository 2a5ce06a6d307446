package opsconsole

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/opsconsole/dashboard"
	"github.com/jpalmerr/opsconsole/internal/apiclient"
	"github.com/jpalmerr/opsconsole/internal/instrument"
	"github.com/jpalmerr/opsconsole/internal/poller"
	"github.com/jpalmerr/opsconsole/internal/server"
	"github.com/jpalmerr/opsconsole/internal/store"
)

const (
	defaultPort        = 8080
	defaultMetricsPath = "/actuator/prometheus"
	defaultTitle       = "Ops Console"
)

// State is the metrics state delivered to subscribers: the latest good
// snapshot, when it was fetched, whether a fetch is in flight and the most
// recent error.
type State = poller.State

// FetchError reports a failed metrics request.
type FetchError = poller.FetchError

// SubscriberError reports a subscriber callback that panicked.
type SubscriberError = poller.SubscriberError

// TokenSource supplies the bearer token for backend requests and forgets it
// when the backend rejects it.
type TokenSource = apiclient.TokenSource

// Console observes the backend's metrics and serves the operator dashboard.
//
// Console owns the single metrics broadcaster of the process. It is created
// using [New] with functional options; [Console.Subscribe] works right away
// and [Console.Start] additionally serves the dashboard until its context is
// cancelled.
//
// The typical lifecycle is:
//
//	c, err := opsconsole.New(opsconsole.WithBaseURL("https://api.example.com"))
//	if err != nil {
//	    slog.Error("failed to create console", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	c.Start(ctx) // blocks until context cancelled
type Console struct {
	title           string
	baseURL         string
	metricsURL      string
	pollingInterval time.Duration
	port            int
	logger          *slog.Logger
	stateCallbacks  []func(State)
	history         historyConfig

	pollClient  *poller.Client
	broadcaster *poller.Broadcaster
	api         *apiclient.Client
	metrics     *instrument.Metrics
}

// New creates a new [Console] instance with the given options.
//
// A base URL must be configured via [WithBaseURL]. Other options have
// sensible defaults:
//   - Metrics path: /actuator/prometheus
//   - Polling interval: 10 seconds
//   - Port: 8080
//
// Nothing is fetched until the first subscriber arrives.
func New(opts ...Option) (*Console, error) {
	cfg := &consoleConfig{
		title:           defaultTitle,
		metricsPath:     defaultMetricsPath,
		pollingInterval: poller.DefaultInterval,
		port:            defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	onUnauthorized := cfg.onUnauthorized
	transport := &apiclient.Transport{
		Base:   poller.NewPooledTransport(),
		Tokens: cfg.tokens,
		OnUnauthorized: func() {
			logger.Warn("backend rejected the session token, log in again")
			if onUnauthorized != nil {
				onUnauthorized()
			}
		},
	}

	api, err := apiclient.New(cfg.baseURL, transport, apiclient.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	metrics := instrument.New()
	pollClient := poller.NewClient(transport)
	metricsURL := cfg.baseURL + cfg.metricsPath
	fetcher := poller.NewFetcher(pollClient, metricsURL, cfg.fetchTimeout)

	return &Console{
		title:           cfg.title,
		baseURL:         cfg.baseURL,
		metricsURL:      metricsURL,
		pollingInterval: cfg.pollingInterval,
		port:            cfg.port,
		logger:          logger,
		stateCallbacks:  cfg.stateCallbacks,
		history:         cfg.history,
		pollClient:      pollClient,
		broadcaster:     poller.NewBroadcaster(fetcher, cfg.pollingInterval, logger, poller.WithObserver(metrics)),
		api:             api,
		metrics:         metrics,
	}, nil
}

// Subscribe registers cb for metrics state updates and returns the function
// that removes it. cb is invoked once with the current state before
// Subscribe returns. Polling runs while at least one subscriber exists.
//
// cb runs on the polling goroutine and must not block or call Subscribe.
func (c *Console) Subscribe(cb func(State)) (unsubscribe func()) {
	return c.broadcaster.Subscribe(cb)
}

// Snapshot returns the current metrics state without side effects.
func (c *Console) Snapshot() State {
	return c.broadcaster.Snapshot()
}

// View renders the current state the way dashboard clients receive it.
func (c *Console) View() View {
	return NewView(c.broadcaster.Snapshot())
}

// Refresh fetches metrics immediately and notifies subscribers.
func (c *Console) Refresh(ctx context.Context) error {
	return c.broadcaster.Refresh(ctx)
}

// API returns the admin API client. It shares the console's transport and
// token source.
func (c *Console) API() *apiclient.Client {
	return c.api
}

// Start serves the dashboard and keeps the configured state callbacks and
// history recorder subscribed.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Metrics are polled while the dashboard, a callback or the recorder is subscribed
//   - The HTTP server starts on the configured port
//   - Every new snapshot is recorded to history when configured
//
// Returns nil on graceful shutdown. Returns an error if the history store
// cannot be opened or the HTTP server fails to start. The Console cannot be
// started again afterwards.
func (c *Console) Start(ctx context.Context) error {
	c.logger.Info("opsconsole starting", "backend", c.baseURL)
	c.logger.Info("polling configured", "interval", c.pollingInterval.String(), "url", c.metricsURL)
	c.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", c.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	history, err := c.openHistory()
	if err != nil {
		return err
	}

	var unsubscribers []func()
	for _, cb := range c.stateCallbacks {
		unsubscribers = append(unsubscribers, c.broadcaster.Subscribe(cb))
	}

	var rec *recorder
	if history != nil {
		rec = newRecorder(history, c.logger)
		unsubscribers = append(unsubscribers, c.broadcaster.Subscribe(rec.observe))
	}

	// cleanup stops polling and waits for pending history writes
	cleanup := func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
		if rec != nil {
			rec.stop()
		}
		c.broadcaster.Close()
		c.pollClient.Close()
		if history != nil {
			if err := history.Close(); err != nil {
				c.logger.Warn("failed to close history store", "error", err.Error())
			}
		}
	}

	srvOpts := []server.Option{server.WithMetricsHandler(c.metrics.Handler())}
	if history != nil {
		srvOpts = append(srvOpts, server.WithHistory(history))
	}
	render := func(st poller.State) any { return NewView(st) }

	httpServer := server.NewServer(c.broadcaster, render, c.port, dashboard.Assets, c.title, c.logger, srvOpts...)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	c.logger.Info("opsconsole stopped")
	return nil
}

func (c *Console) openHistory() (store.Store, error) {
	switch c.history.driver {
	case "memory":
		return store.NewMemoryStore(c.history.capacity), nil
	case "sqlite":
		st, err := store.NewSQLiteStore(c.history.path, c.history.retention, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		return st, nil
	}
	return nil, nil
}

// Title returns the dashboard title.
func (c *Console) Title() string {
	return c.title
}

// Port returns the configured HTTP port for the dashboard server.
func (c *Console) Port() int {
	return c.port
}

// PollingInterval returns the configured interval between poll cycles.
func (c *Console) PollingInterval() time.Duration {
	return c.pollingInterval
}

// MetricsURL returns the full URL of the metrics endpoint.
func (c *Console) MetricsURL() string {
	return c.metricsURL
}
