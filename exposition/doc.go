// Package exposition parses the line-oriented metrics exposition text served
// by the backend (for example a Spring Boot /actuator/prometheus endpoint)
// into an immutable, label-aware [Snapshot].
//
// Each sample line has the shape:
//
//	metric_name{label1="value1",label2="value2"} 123.45
//	metric_name 123.45
//
// Lines starting with "#" are comments and blank lines are ignored. The
// parser is deliberately lenient: any line it cannot understand is dropped
// rather than failing the whole document, so a [Parse] call always returns a
// (possibly empty) snapshot.
//
// A [Snapshot] offers two views over the same parse pass:
//
//   - [Snapshot.Values]: the raw numeric values of a metric in file order,
//     convenient for "first value" lookups
//   - [Snapshot.Series]: the same samples with their label sets, used for
//     label-filtered lookups
//
// Both views always have the same length and order for a given name.
package exposition
