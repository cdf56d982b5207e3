package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics tracks the stakingd HTTP surface.
type APIMetrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	throttles   *prometheus.CounterVec
	events      *prometheus.CounterVec
	subscribers prometheus.Gauge
	replays     prometheus.Counter
}

var (
	apiOnce     sync.Once
	apiRegistry *APIMetrics
)

// API returns the lazily-initialised HTTP metrics registry.
func API() *APIMetrics {
	apiOnce.Do(func() {
		apiRegistry = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakingd",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "events",
				Name:      "broadcast_total",
				Help:      "Events fanned out to websocket subscribers by type.",
			}, []string{"type"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakingd",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Connected websocket subscribers.",
			}),
			replays: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "api",
				Name:      "idempotent_replays_total",
				Help:      "Requests answered from the audit log instead of being re-applied.",
			}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.latency,
			apiRegistry.throttles,
			apiRegistry.events,
			apiRegistry.subscribers,
			apiRegistry.replays,
		)
	})
	return apiRegistry
}

// Observe records one handled request.
func (m *APIMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *APIMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// RecordEvent counts a broadcast event.
func (m *APIMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// SubscriberDelta adjusts the connected subscriber gauge.
func (m *APIMetrics) SubscriberDelta(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

// RecordReplay counts an idempotent replay.
func (m *APIMetrics) RecordReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}
