// Package opsconsole provides an embeddable operations console for a
// Spring-style backend: a live dashboard of the backend's Prometheus metrics
// plus a client for its admin API.
//
// The console polls the backend's metrics endpoint only while someone is
// watching. Every dashboard connection, state callback and history recorder
// is a subscriber; the first one starts polling and the last one to leave
// stops it. All subscribers see the same state at the same time.
//
// # Quick Start
//
// Point the console at the backend and start the dashboard with graceful
// shutdown:
//
//	tokens := auth.NewStore()
//	c, _ := opsconsole.New(
//	    opsconsole.WithBaseURL("https://api.example.com"),
//	    opsconsole.WithTokenSource(tokens),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	c.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Console uses the functional options pattern for configuration:
//
//	c, err := opsconsole.New(
//	    opsconsole.WithBaseURL("https://api.example.com"),
//	    opsconsole.WithMetricsPath("/actuator/prometheus"),
//	    opsconsole.WithPollingInterval(30 * time.Second),
//	    opsconsole.WithPort(9090),
//	    opsconsole.WithSQLiteHistory("history.db", 7*24*time.Hour),
//	)
//
// # Health Classification
//
// CPU and memory utilization are classified into a [Status]: above 0.8 is
// [StatusError], above 0.6 [StatusWarning], anything else [StatusSuccess].
// Missing data is [StatusUnknown], never success. [SystemStatus] is the worst
// of the known dimensions. [Summarize] collects every figure the dashboard
// shows into a [Summary].
//
// # Architecture
//
// The console consists of these packages:
//
//   - exposition: Tolerant parser for the Prometheus text format
//   - internal/poller: Subscriber-driven polling and state broadcast
//   - internal/apiclient: Admin API client with bearer-token transport
//   - internal/auth: Session token storage with JWT expiry
//   - internal/store: Metric history, in memory or in SQLite
//   - internal/instrument: Prometheus metrics about the console itself
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package opsconsole
