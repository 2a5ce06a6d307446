// Package store keeps the history of the console's dashboard metrics.
//
// The console records the headline values of every new metrics snapshot
// (CPU, memory, sessions, response time and so on) so that the dashboard can
// draw short trends without a separate time-series database.
//
// The main components are:
//
//   - [Store]: Interface defining record, query and subscription operations
//   - [MemoryStore]: Bounded in-memory ring per metric
//   - [SQLiteStore]: File-backed store with time-based retention
//   - [Point]: One recorded value
//
// Both implementations publish recorded points to subscribers via buffered
// channels with non-blocking sends (slow subscribers miss points rather than
// block recording).
package store
