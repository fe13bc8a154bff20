package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// tableMetrics contains Prometheus metrics for route resolution.
type tableMetrics struct {
	matches         *prometheus.CounterVec
	misses          prometheus.Counter
	rewriteFailures prometheus.Counter
}

var (
	tableMetricsInstance *tableMetrics
	tableMetricsOnce     sync.Once
)

// routerMetrics returns the singleton route table metrics instance.
func routerMetrics() *tableMetrics {
	tableMetricsOnce.Do(func() {
		tableMetricsInstance = &tableMetrics{
			matches: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "route_matches_total",
					Help:      "Total number of requests matched per route",
				},
				[]string{"route"},
			),
			misses: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "route_misses_total",
					Help:      "Total number of requests that matched no route",
				},
			),
			rewriteFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "rewrite_failures_total",
					Help:      "Total number of rewrite precondition violations",
				},
			),
		}
	})
	return tableMetricsInstance
}
