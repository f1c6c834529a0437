// Package metrics exposes the Prometheus instrumentation for the generation
// gateway and session lifecycle. Register must be called once from main
// before the /metrics endpoint is served.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Gateway and session Prometheus metrics.
var (
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetmatch",
			Name:      "gateway_requests_total",
			Help:      "Total number of gateway provider calls",
		},
		[]string{"provider", "op", "status"},
	)

	GatewayRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetmatch",
			Name:      "gateway_retries_total",
			Help:      "Total number of retried provider calls",
		},
		[]string{"provider", "kind"},
	)

	GatewayFailoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetmatch",
			Name:      "gateway_failovers_total",
			Help:      "Total number of provider failovers",
		},
		[]string{"from", "to"},
	)

	GatewayThrottleWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "duetmatch",
			Name:      "gateway_throttle_wait_seconds",
			Help:      "Time spent waiting on the per-provider rate window",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "duetmatch",
			Name:      "sessions_active",
			Help:      "Number of sessions with a live orchestrator",
		},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetmatch",
			Name:      "turns_total",
			Help:      "Total number of persona turns executed",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register registers all duetmatch metrics with the default registry. Safe to
// call from multiple goroutines; registration happens exactly once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			GatewayRequestsTotal,
			GatewayRetriesTotal,
			GatewayFailoversTotal,
			GatewayThrottleWait,
			SessionsActive,
			TurnsTotal,
		)
	})
}
