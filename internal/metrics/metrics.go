// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package metrics holds the Prometheus collectors exported on /metrics.
//
// Instrumented areas:
//   - Webhook intake (admitted, filtered, rejected per source)
//   - Dispatch outcomes and latency per backend
//   - Identifier resolution and the mapping cache
//   - Per-backend circuit breakers
//   - HTTP API requests
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook Metrics
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_webhooks_received_total",
			Help: "Total number of webhook deliveries by source and outcome",
		},
		[]string{"source", "outcome"}, // outcome: "admitted", "filtered", "malformed", "not_configured"
	)

	// Dispatch Metrics
	DispatchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_dispatch_results_total",
			Help: "Total number of backend updates by backend and severity",
		},
		[]string{"backend", "severity"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pjaws_dispatch_duration_seconds",
			Help:    "Duration of one backend update including identifier resolution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	DispatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pjaws_dispatch_in_flight",
			Help: "Current number of events being dispatched",
		},
	)

	DispatchPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_dispatch_panics_total",
			Help: "Total number of recovered panics in backend calls",
		},
		[]string{"backend"},
	)

	// Identifier Resolution Metrics
	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_resolve_total",
			Help: "Identifier resolutions by namespace and the step that answered",
		},
		[]string{"namespace", "step"}, // step: "identity", "override", "cache", "native", "not_found"
	)

	MappingRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_mapping_refresh_total",
			Help: "Mapping document downloads by result",
		},
		[]string{"result"}, // result: "success", "failure"
	)

	MappingCorruptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pjaws_mapping_corruptions_total",
			Help: "Number of times the cached mapping document failed to parse and was deleted",
		},
	)

	MappingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pjaws_mapping_entries",
			Help: "Number of entries in the loaded mapping document",
		},
	)

	MappingAgeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pjaws_mapping_age_seconds",
			Help: "Age of the cached mapping document when last read",
		},
	)

	NativeMemoEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pjaws_native_memo_entries",
			Help: "Number of remembered backend-native lookup hits",
		},
	)

	NativeMemoHitRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pjaws_native_memo_hit_ratio",
			Help: "Hit ratio of the backend-native lookup memo since start",
		},
	)

	NativeMemoExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pjaws_native_memo_expired_total",
			Help: "Remembered native lookups dropped after their TTL",
		},
	)

	// Backend Registry Metrics
	BackendReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pjaws_backend_ready",
			Help: "1 if the backend initialized successfully, 0 if disabled",
		},
		[]string{"backend"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Outbound client metrics
	BackendAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_backend_api_requests_total",
			Help: "Outbound requests to backend APIs by status class",
		},
		[]string{"backend", "status"}, // status: "2xx", "4xx", "5xx", "429", "error"
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pjaws_notifications_total",
			Help: "Chat notifications by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// RecordWebhook records one webhook delivery.
func RecordWebhook(source, outcome string) {
	WebhooksReceived.WithLabelValues(source, outcome).Inc()
}

// RecordDispatch records the outcome of one backend update.
func RecordDispatch(backend, severity string, duration time.Duration) {
	DispatchResults.WithLabelValues(backend, severity).Inc()
	DispatchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// TrackDispatch tracks events currently being fanned out.
func TrackDispatch(inc bool) {
	if inc {
		DispatchInFlight.Inc()
	} else {
		DispatchInFlight.Dec()
	}
}

// RecordResolve records which resolution step answered.
func RecordResolve(namespace, step string) {
	ResolveTotal.WithLabelValues(namespace, step).Inc()
}

// RecordMappingRefresh records a mapping download attempt.
func RecordMappingRefresh(err error) {
	if err != nil {
		MappingRefreshes.WithLabelValues("failure").Inc()
		return
	}
	MappingRefreshes.WithLabelValues("success").Inc()
}

// RecordNativeMemo publishes the native lookup memo state after a sweep.
func RecordNativeMemo(entries int, hitRatio float64, expired int) {
	NativeMemoEntries.Set(float64(entries))
	NativeMemoHitRatio.Set(hitRatio)
	NativeMemoExpired.Add(float64(expired))
}

// SetBackendReady records a backend's registry state.
func SetBackendReady(backend string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	BackendReady.WithLabelValues(backend).Set(v)
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBackendAPIRequest buckets an outbound response status. A zero status
// means the request failed before a response arrived.
func RecordBackendAPIRequest(backend string, status int) {
	BackendAPIRequests.WithLabelValues(backend, statusClass(status)).Inc()
}

// RecordNotification records a chat notification attempt.
func RecordNotification(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotificationsSent.WithLabelValues(kind, result).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status == 429:
		return "429"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
