package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyMetrics contains Prometheus metrics for the dispatcher.
type proxyMetrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// dispatcherMetrics returns the singleton dispatcher metrics instance.
func dispatcherMetrics() *proxyMetrics {
	proxyMetricsOnce.Do(func() {
		proxyMetricsInstance = &proxyMetrics{
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "requests_total",
					Help:      "Total number of proxied backend responses by status code",
				},
				[]string{"service", "code"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "upstream_failures_total",
					Help:      "Total number of classified upstream transport failures",
				},
				[]string{"service", "class"},
			),
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "request_duration_seconds",
					Help:      "Duration of backend dispatches",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"service"},
			),
		}
	})
	return proxyMetricsInstance
}
