// Package metrics exposes Prometheus collectors for the hot topics service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchRequestsTotal     *prometheus.CounterVec
	rateLimitDelaySeconds  *prometheus.HistogramVec
	settlementsTotal       *prometheus.CounterVec
	fallbackTriggersTotal  prometheus.Counter
	broadcastMessagesTotal *prometheus.CounterVec
	connectedClients       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_fetch_requests_total",
				Help: "Total outbound fetch attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotspot_rate_limit_delay_seconds",
				Help:    "Delay introduced by the per-host rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
		)

		settlementsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_settlements_total",
				Help: "Hourly snapshot settlements, labeled by provenance.",
			},
			[]string{"source"},
		)

		fallbackTriggersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hotspot_fallback_triggers_total",
				Help: "Number of times the fallback crawl was triggered.",
			},
		)

		broadcastMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_broadcast_messages_total",
				Help: "Messages sent to websocket clients, labeled by type.",
			},
			[]string{"type"},
		)

		connectedClients = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotspot_connected_clients",
				Help: "Number of currently connected websocket clients.",
			},
		)
	})
}

// ObserveFetch records one outbound fetch attempt.
func ObserveFetch(host, outcome string) {
	if fetchRequestsTotal == nil {
		return
	}
	fetchRequestsTotal.WithLabelValues(host, outcome).Inc()
}

// ObserveRateLimitDelay records time spent waiting on the per-host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveSettlement records a committed snapshot by provenance.
func ObserveSettlement(source string) {
	if settlementsTotal == nil {
		return
	}
	settlementsTotal.WithLabelValues(source).Inc()
}

// ObserveFallbackTrigger records one fallback crawl invocation.
func ObserveFallbackTrigger() {
	if fallbackTriggersTotal == nil {
		return
	}
	fallbackTriggersTotal.Inc()
}

// ObserveBroadcast records a message pushed to a client.
func ObserveBroadcast(msgType string) {
	if broadcastMessagesTotal == nil {
		return
	}
	broadcastMessagesTotal.WithLabelValues(msgType).Inc()
}

// SetConnectedClients updates the connected-client gauge.
func SetConnectedClients(n int) {
	if connectedClients == nil {
		return
	}
	connectedClients.Set(float64(n))
}
