// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsCollectedTotal     *prometheus.CounterVec
	collectionsTotal          *prometheus.CounterVec
	collectionDurationSeconds *prometheus.HistogramVec
	fetchAttemptsTotal        *prometheus.CounterVec
	rateLimitDelaySeconds     *prometheus.HistogramVec
	proxyPoolSize             prometheus.Gauge
	proxyHealthChecksTotal    *prometheus.CounterVec
	cookieEvictionsTotal      *prometheus.CounterVec
	streamFramesTotal         *prometheus.CounterVec
	dispatchInFlightWorkers   prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		recordsCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_records_total",
				Help: "Total number of records collected, labeled by source type.",
			},
			[]string{"source_type"},
		)
		collectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_collections_total",
				Help: "Total number of collection tasks, labeled by terminal status.",
			},
			[]string{"status"},
		)
		collectionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_collection_duration_seconds",
				Help:    "End-to-end collection task duration, labeled by terminal status.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"status"},
		)
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_fetch_attempts_total",
				Help: "Total fetch attempts by the request executor, labeled by domain and outcome.",
			},
			[]string{"domain", "outcome"},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-domain rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"domain"},
		)
		proxyPoolSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_proxy_pool_size",
				Help: "Current number of proxies in the pool.",
			},
		)
		proxyHealthChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_proxy_health_checks_total",
				Help: "Proxy health check probes, labeled by result.",
			},
			[]string{"result"},
		)
		cookieEvictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_cookie_evictions_total",
				Help: "Cookies evicted after exhausting their use budget, labeled by domain.",
			},
			[]string{"domain"},
		)
		streamFramesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_stream_frames_total",
				Help: "Websocket frames processed by the stream source, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		dispatchInFlightWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_dispatch_inflight_workers",
				Help: "Blocking-strategy workers currently running.",
			},
		)
	})
}

// AddRecords counts collected records for a source type.
func AddRecords(sourceType string, n int) {
	if recordsCollectedTotal == nil {
		return
	}
	recordsCollectedTotal.WithLabelValues(sourceType).Add(float64(n))
}

// ObserveCollection counts a terminal collection outcome and records its
// end-to-end duration.
func ObserveCollection(status string, d time.Duration) {
	if collectionsTotal == nil {
		return
	}
	collectionsTotal.WithLabelValues(status).Inc()
	collectionDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveFetch counts one executor attempt.
func ObserveFetch(domain, outcome string) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(domain, outcome).Inc()
}

// ObserveRateLimitDelay records time spent blocked on the limiter.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// SetProxyPoolSize records the current pool size.
func SetProxyPoolSize(n int) {
	if proxyPoolSize == nil {
		return
	}
	proxyPoolSize.Set(float64(n))
}

// ObserveProxyHealthCheck counts one probe result.
func ObserveProxyHealthCheck(ok bool) {
	if proxyHealthChecksTotal == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	proxyHealthChecksTotal.WithLabelValues(result).Inc()
}

// ObserveCookieEviction counts a cookie eviction for a domain.
func ObserveCookieEviction(domain string) {
	if cookieEvictionsTotal == nil {
		return
	}
	cookieEvictionsTotal.WithLabelValues(domain).Inc()
}

// ObserveStreamFrame counts a processed stream frame.
func ObserveStreamFrame(outcome string) {
	if streamFramesTotal == nil {
		return
	}
	streamFramesTotal.WithLabelValues(outcome).Inc()
}

// WorkerStarted / WorkerFinished track the blocking-offload pool.
func WorkerStarted() {
	if dispatchInFlightWorkers != nil {
		dispatchInFlightWorkers.Inc()
	}
}

// WorkerFinished decrements the in-flight worker gauge.
func WorkerFinished() {
	if dispatchInFlightWorkers != nil {
		dispatchInFlightWorkers.Dec()
	}
}
