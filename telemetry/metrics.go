// Package telemetry provides optional, nil-safe observability sinks —
// Prometheus counters/histograms and OpenTelemetry spans — that plug into
// the bus and cache packages' hook/event surfaces without either package
// importing a concrete exporter.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// driverLabels/errorLabels mirror dcache's fixed hit-label shape
// (hitLabelMemory/hitLabelRedis/hitLabelDB), generalized to arbitrary
// driver/operation names instead of a fixed three-tier enum.
var (
	driverLabels = []string{"driver"}
	errorLabels  = []string{"operation"}
	busLabels    = []string{"channel"}
)

var latencyBuckets = []float64{1, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// MetricSet bundles the counters/histograms a single fluxcache instance
// reports. Every recording method is nil-safe, so a *MetricSet can be left
// nil anywhere it's threaded through to disable metrics entirely.
type MetricSet struct {
	Hit          *prometheus.CounterVec
	Miss         prometheus.Counter
	Latency      *prometheus.HistogramVec
	Error        *prometheus.CounterVec
	BusPublished *prometheus.CounterVec
	BusReceived  *prometheus.CounterVec
	DeadLetter   *prometheus.CounterVec
}

// NewMetricSet constructs a MetricSet with namespace-prefixed metric names,
// mirroring dcache's fmt.Sprintf("%s_dcache_hit_total", appName) convention.
func NewMetricSet(namespace string) *MetricSet {
	return &MetricSet{
		Hit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: namespace + "_fluxcache_hit_total",
			Help: "cache hits by driver (l1, or the named L2 layer)",
		}, driverLabels),
		Miss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_fluxcache_miss_total",
			Help: "cache misses across all tiers",
		}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    namespace + "_fluxcache_latency_ms",
			Help:    "cache get/getOrSet latency in milliseconds",
			Buckets: latencyBuckets,
		}, driverLabels),
		Error: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: namespace + "_fluxcache_error_total",
			Help: "errors by operation",
		}, errorLabels),
		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: namespace + "_fluxcache_bus_published_total",
			Help: "bus messages published by channel",
		}, busLabels),
		BusReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: namespace + "_fluxcache_bus_received_total",
			Help: "bus messages received by channel",
		}, busLabels),
		DeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: namespace + "_fluxcache_dead_letter_total",
			Help: "publishes that exhausted retry and were dead-lettered, by channel",
		}, busLabels),
	}
}

// Register registers every collector in m against reg. Errors from an
// individual already-registered collector are silently ignored rather
// than fatal.
func (m *MetricSet) Register(reg prometheus.Registerer) {
	if m == nil {
		return
	}
	for _, c := range []prometheus.Collector{m.Hit, m.Miss, m.Latency, m.Error, m.BusPublished, m.BusReceived, m.DeadLetter} {
		_ = reg.Register(c)
	}
}

// Unregister removes every collector in m from reg.
func (m *MetricSet) Unregister(reg prometheus.Registerer) {
	if m == nil {
		return
	}
	for _, c := range []prometheus.Collector{m.Hit, m.Miss, m.Latency, m.Error, m.BusPublished, m.BusReceived, m.DeadLetter} {
		reg.Unregister(c)
	}
}

func (m *MetricSet) RecordHit(driver string, d time.Duration) {
	if m == nil {
		return
	}
	m.Hit.WithLabelValues(driver).Inc()
	m.Latency.WithLabelValues(driver).Observe(float64(d.Milliseconds()))
}

func (m *MetricSet) RecordMiss() {
	if m == nil {
		return
	}
	m.Miss.Inc()
}

func (m *MetricSet) RecordError(operation string) {
	if m == nil {
		return
	}
	m.Error.WithLabelValues(operation).Inc()
}

func (m *MetricSet) RecordBusPublished(channel string) {
	if m == nil {
		return
	}
	m.BusPublished.WithLabelValues(channel).Inc()
}

func (m *MetricSet) RecordBusReceived(channel string) {
	if m == nil {
		return
	}
	m.BusReceived.WithLabelValues(channel).Inc()
}

func (m *MetricSet) RecordDeadLetter(channel string) {
	if m == nil {
		return
	}
	m.DeadLetter.WithLabelValues(channel).Inc()
}
