// Package server provides the HTTP server for the console dashboard and API.
//
// This package is internal to opsconsole and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: JSON views of the live metrics and their history
//   - Server-Sent Events: Real-time updates at "/api/sse"
//   - Self-metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the opsconsole library should not need to interact with this
// package directly. The server is started by [opsconsole.Console.Start].
package server
