// Package metrics instruments the pass pipeline, the constant cache, and
// the execution dispatcher with Prometheus collectors.
//
// Grounded on etalazz-vsa's internal/ratelimiter/core/metrics.go and
// internal/ratelimiter/telemetry/churn/prom_counters.go, which instrument a
// concurrent, shard-cached runtime the same way: per-operation counters
// labeled by name, a latency histogram, and cache hit/miss counters. A nil
// *Collector is a valid no-op, matching that package's pattern of accepting
// an optional *prometheus.Registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every metric this module exports. The zero value is not
// usable directly — use New or NewUnregistered — but a nil *Collector is
// accepted everywhere a Collector is threaded through, and every method on
// a nil receiver is a no-op, so instrumentation is strictly optional.
type Collector struct {
	passRuns     *prometheus.CounterVec
	passFailures *prometheus.CounterVec
	executeSecs  *prometheus.HistogramVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge
}

// New creates a Collector and registers its metrics on reg. If reg is nil,
// the metrics are created but not registered (useful in tests that don't
// want to touch the default registry).
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		passRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partitionkernel",
			Subsystem: "pipeline",
			Name:      "pass_runs_total",
			Help:      "Number of times each named pass ran.",
		}, []string{"pass"}),
		passFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partitionkernel",
			Subsystem: "pipeline",
			Name:      "pass_failures_total",
			Help:      "Number of times each named pass returned an error.",
		}, []string{"pass"}),
		executeSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "partitionkernel",
			Subsystem: "dispatcher",
			Name:      "execute_seconds",
			Help:      "Wall-clock duration of Execute, labeled by backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partitionkernel",
			Subsystem: "constcache",
			Name:      "hits_total",
			Help:      "Constant-cache lookups served from an existing entry.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partitionkernel",
			Subsystem: "constcache",
			Name:      "misses_total",
			Help:      "Constant-cache lookups that became the producer.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partitionkernel",
			Subsystem: "constcache",
			Name:      "entries",
			Help:      "Current number of live constant-cache entries.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.passRuns, c.passFailures, c.executeSecs,
			c.cacheHits, c.cacheMisses, c.cacheEntries)
	}
	return c
}

// ObservePass records a pass invocation and, if err != nil, a failure.
func (c *Collector) ObservePass(name string, err error) {
	if c == nil {
		return
	}
	c.passRuns.WithLabelValues(name).Inc()
	if err != nil {
		c.passFailures.WithLabelValues(name).Inc()
	}
}

// ObserveExecute records the wall-clock duration of one Execute call.
func (c *Collector) ObserveExecute(backend string, d time.Duration) {
	if c == nil {
		return
	}
	c.executeSecs.WithLabelValues(backend).Observe(d.Seconds())
}

// CacheHit/CacheMiss/SetCacheEntries update the constant-cache gauges.
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}
