// Package instrument exposes the console's own Prometheus metrics.
//
// Metrics are registered on a private registry, never the global one, so
// that several consoles (or tests) can live in one process.
package instrument

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/opsconsole/exposition"
)

const namespace = "opsconsole"

// Metrics records poll and subscriber activity. It satisfies the
// broadcaster's Observer interface.
type Metrics struct {
	registry *prometheus.Registry

	pollCycles       *prometheus.CounterVec
	pollDuration     prometheus.Histogram
	subscribers      prometheus.Gauge
	subscriberPanics prometheus.Counter
	snapshotSeries   prometheus.Gauge
}

// New creates the console metrics on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Metrics poll cycles by result.",
			},
			[]string{"result"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Latency of metrics poll cycles in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscribers",
				Help:      "Currently registered metrics subscribers.",
			},
		),
		subscriberPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriber_panics_total",
				Help:      "Subscriber callbacks that panicked during delivery.",
			},
		),
		snapshotSeries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_series",
				Help:      "Series in the latest successful metrics snapshot.",
			},
		),
	}

	// pre-create both results so they are exported as zero
	m.pollCycles.WithLabelValues("success")
	m.pollCycles.WithLabelValues("error")

	m.registry.MustRegister(
		m.pollCycles,
		m.pollDuration,
		m.subscribers,
		m.subscriberPanics,
		m.snapshotSeries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CycleCompleted records one poll cycle.
func (m *Metrics) CycleCompleted(elapsed time.Duration, snap *exposition.Snapshot, err error) {
	m.pollDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.pollCycles.WithLabelValues("error").Inc()
		return
	}
	m.pollCycles.WithLabelValues("success").Inc()
	m.snapshotSeries.Set(float64(snap.Len()))
}

// SubscribersChanged records the current subscriber count.
func (m *Metrics) SubscribersChanged(n int) {
	m.subscribers.Set(float64(n))
}

// SubscriberPanicked counts a recovered subscriber panic.
func (m *Metrics) SubscriberPanicked() {
	m.subscriberPanics.Inc()
}
