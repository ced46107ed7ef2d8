// Package metrics provides Prometheus instrumentation for lexkey.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexkey_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lexkey_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Key generation metrics.
var (
	KeysGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexkey_keys_generated_total",
		Help: "Total number of ordering keys generated, by placement.",
	}, []string{"placement"})

	KeyLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lexkey_key_length_chars",
		Help:    "Length in characters of generated ordering keys.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	CompactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexkey_compactions_total",
		Help: "Total number of list compactions performed.",
	})
)

// Watch stream metrics.
var (
	WatchConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lexkey_watch_connections_active",
		Help: "Number of active watch WebSocket connections.",
	})

	WatchEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexkey_watch_events_total",
		Help: "Total number of change events sent to watchers.",
	})
)

// RecordKey records a generated key for the given placement.
func RecordKey(placement, key string) {
	KeysGeneratedTotal.WithLabelValues(placement).Inc()
	KeyLength.Observe(float64(len(key)))
}
