package opsconsole

import (
	"github.com/jpalmerr/opsconsole/exposition"
)

// Metric names read by the dashboard.
const (
	MetricCPUUsage       = "system_cpu_usage"
	MetricMemoryAfterGC  = "jvm_memory_usage_after_gc_percent"
	MetricActiveSessions = "tomcat_sessions_active_current_sessions"
	MetricMaxSessions    = "tomcat_sessions_active_max_sessions"
	MetricRequestCount   = "http_server_requests_seconds_count"
	MetricRequestSeconds = "http_server_requests_seconds_sum"
	MetricPoolIdle       = "hikaricp_connections_idle"
	MetricPoolMax        = "hikaricp_connections_max"
	MetricLiveThreads    = "jvm_threads_live_threads"
	MetricPeakThreads    = "jvm_threads_peak_threads"
	MetricUptimeSeconds  = "process_uptime_seconds"
)

// Classification thresholds for utilization fractions.
const (
	ErrorThreshold   = 0.8
	WarningThreshold = 0.6
)

// LabelPredicate selects a series by its labels. Predicates receive a copy
// of the label map.
type LabelPredicate func(labels map[string]string) bool

// MatchLabels returns a predicate matching series whose labels contain every
// given key/value pair. Arguments alternate key, value; an odd count panics.
func MatchLabels(kv ...string) LabelPredicate {
	if len(kv)%2 != 0 {
		panic("opsconsole: MatchLabels called with an odd number of arguments")
	}
	pairs := append([]string(nil), kv...)
	return func(labels map[string]string) bool {
		for i := 0; i < len(pairs); i += 2 {
			if v, ok := labels[pairs[i]]; !ok || v != pairs[i+1] {
				return false
			}
		}
		return true
	}
}

// longLivedHeap selects the heap pool reported by the memory dimension.
var longLivedHeap = MatchLabels("area", "heap", "pool", "long-lived")

// LookupLabeled returns the value of the first series of name, in document
// order, whose labels satisfy pred. A nil pred matches every series. A
// predicate that panics is treated as not matching that series.
func LookupLabeled(snap *exposition.Snapshot, name string, pred LabelPredicate) (float64, bool) {
	for _, s := range snap.Series(name) {
		if pred == nil || safeMatch(pred, s.Labels) {
			return s.Value, true
		}
	}
	return 0, false
}

func safeMatch(pred LabelPredicate, labels map[string]string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return pred(labels)
}

// Classify maps a utilization fraction to a status: above 0.8 is an error,
// above 0.6 a warning, anything else success.
func Classify(v float64) Status {
	switch {
	case v > ErrorThreshold:
		return StatusError
	case v > WarningThreshold:
		return StatusWarning
	}
	return StatusSuccess
}

// CPUUsage returns the system CPU utilization fraction.
func CPUUsage(snap *exposition.Snapshot) (float64, bool) {
	return snap.First(MetricCPUUsage)
}

// MemoryUsage returns the post-GC utilization fraction of the long-lived heap
// pool. When no series carries those labels, the first value of the metric
// is used instead.
func MemoryUsage(snap *exposition.Snapshot) (float64, bool) {
	if v, ok := LookupLabeled(snap, MetricMemoryAfterGC, longLivedHeap); ok {
		return v, true
	}
	return snap.First(MetricMemoryAfterGC)
}

// CPUStatus classifies [CPUUsage]; absent data is [StatusUnknown].
func CPUStatus(snap *exposition.Snapshot) Status {
	v, ok := CPUUsage(snap)
	if !ok {
		return StatusUnknown
	}
	return Classify(v)
}

// MemoryStatus classifies [MemoryUsage]; absent data is [StatusUnknown].
func MemoryStatus(snap *exposition.Snapshot) Status {
	v, ok := MemoryUsage(snap)
	if !ok {
		return StatusUnknown
	}
	return Classify(v)
}

// SystemStatus is the most severe of the CPU and memory statuses. Dimensions
// without data are ignored; the result is [StatusUnknown] only when no
// dimension has data or snap is nil.
func SystemStatus(snap *exposition.Snapshot) Status {
	if snap == nil {
		return StatusUnknown
	}
	return Worst(CPUStatus(snap), MemoryStatus(snap))
}
