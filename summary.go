package opsconsole

import (
	"fmt"
	"math"

	"github.com/jpalmerr/opsconsole/exposition"
)

// Fallback capacities used when the backend does not report them.
const (
	DefaultMaxSessions = 55
	DefaultPoolMax     = 8
)

// Summary holds the headline figures of one metrics snapshot as shown on the
// dashboard.
type Summary struct {
	System Status `json:"system"`
	CPU    Status `json:"cpu"`
	Memory Status `json:"memory"`

	// CPUPercent and MemoryPercent are rounded to one decimal; nil when the
	// backend did not report them.
	CPUPercent    *float64 `json:"cpu_percent"`
	MemoryPercent *float64 `json:"memory_percent"`

	ActiveSessions float64 `json:"active_sessions"`
	MaxSessions    float64 `json:"max_sessions"`

	Requests      float64 `json:"requests"`
	AvgResponseMs float64 `json:"avg_response_ms"`

	PoolIdle float64 `json:"pool_idle"`
	PoolMax  float64 `json:"pool_max"`

	LiveThreads float64 `json:"live_threads"`
	PeakThreads float64 `json:"peak_threads"`

	UptimeSeconds float64 `json:"uptime_seconds"`
	Uptime        string  `json:"uptime"`
}

// Summarize derives the dashboard [Summary] from snap. Missing counters read
// as zero; missing capacities use [DefaultMaxSessions] and [DefaultPoolMax].
// A nil snap yields unknown statuses and zero values.
func Summarize(snap *exposition.Snapshot) Summary {
	s := Summary{
		System: SystemStatus(snap),
		CPU:    CPUStatus(snap),
		Memory: MemoryStatus(snap),

		ActiveSessions: firstOr(snap, MetricActiveSessions, 0),
		MaxSessions:    firstOr(snap, MetricMaxSessions, DefaultMaxSessions),
		Requests:       firstOr(snap, MetricRequestCount, 0),
		PoolIdle:       firstOr(snap, MetricPoolIdle, 0),
		PoolMax:        firstOr(snap, MetricPoolMax, DefaultPoolMax),
		LiveThreads:    firstOr(snap, MetricLiveThreads, 0),
		PeakThreads:    firstOr(snap, MetricPeakThreads, 0),
		UptimeSeconds:  firstOr(snap, MetricUptimeSeconds, 0),
	}

	if v, ok := CPUUsage(snap); ok {
		s.CPUPercent = percent(v)
	}
	if v, ok := MemoryUsage(snap); ok {
		s.MemoryPercent = percent(v)
	}

	sum := firstOr(snap, MetricRequestSeconds, 0)
	if sum != 0 && s.Requests > 0 {
		s.AvgResponseMs = math.Round(sum / s.Requests * 1000)
	}

	s.Uptime = FormatUptime(s.UptimeSeconds)
	return s
}

// Gauges returns the summary values worth keeping as history, keyed by a
// stable name. Percentages the backend did not report are left out.
func (s Summary) Gauges() map[string]float64 {
	g := map[string]float64{
		"active_sessions": s.ActiveSessions,
		"requests":        s.Requests,
		"avg_response_ms": s.AvgResponseMs,
		"pool_idle":       s.PoolIdle,
		"live_threads":    s.LiveThreads,
		"uptime_seconds":  s.UptimeSeconds,
	}
	if s.CPUPercent != nil {
		g["cpu_percent"] = *s.CPUPercent
	}
	if s.MemoryPercent != nil {
		g["memory_percent"] = *s.MemoryPercent
	}
	return g
}

// FormatUptime renders seconds as "Nd HHh MMm". Fractions are truncated;
// negative and non-finite input renders as zero.
func FormatUptime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	return fmt.Sprintf("%dd %02dh %02dm", days, hours, minutes)
}

// firstOr returns the first value of name, or def when it is missing or zero.
func firstOr(snap *exposition.Snapshot, name string, def float64) float64 {
	if v, ok := snap.First(name); ok && v != 0 {
		return v
	}
	return def
}

func percent(fraction float64) *float64 {
	p := math.Round(fraction*1000) / 10
	return &p
}
