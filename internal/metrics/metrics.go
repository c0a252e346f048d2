// Package metrics exposes Prometheus collectors for outbound backend traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound requests
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biketag_backend_requests_total",
		Help: "Total number of outbound backend requests.",
	}, []string{"backend", "method", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biketag_backend_request_duration_seconds",
		Help:    "Duration of outbound backend requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "method"})

	RequestRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biketag_backend_request_retries_total",
		Help: "Total number of retried backend requests.",
	}, []string{"backend"})

	// Response cache
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biketag_cache_hits_total",
		Help: "Total number of cached responses served.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biketag_cache_misses_total",
		Help: "Total number of cacheable requests that missed.",
	})

	// Realtime peer
	RealtimeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biketag_realtime_messages_total",
		Help: "Total number of realtime peer messages.",
	}, []string{"direction"}) // direction: sent, received
)

// ObserveRequest records one completed outbound request. status is 0 when the
// request failed before a response arrived.
func ObserveRequest(backend, method string, status int, start time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(backend, method, label).Inc()
	RequestDuration.WithLabelValues(backend, method).Observe(time.Since(start).Seconds())
}
