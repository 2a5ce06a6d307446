// Package poller retrieves the backend's metrics exposition and broadcasts
// it to in-process subscribers.
//
// This package is internal to the console. The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeout and size limits
//   - [Fetcher]: one GET of the metrics endpoint, parsed with the exposition package
//   - [Broadcaster]: subscriber-driven polling loop holding the latest [State]
//   - [FetchError], [SubscriberError]: the two failure kinds a [State] can carry
//
// Users of the opsconsole library should not need to interact with this
// package directly; [opsconsole.Console] exposes Subscribe and Snapshot.
package poller
