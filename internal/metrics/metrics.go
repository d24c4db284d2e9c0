// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	MaterialDownloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_downloads_total",
		Help: "Material files served.",
	})

	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Participants registered.",
	})

	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "login_failures_total",
		Help: "Rejected login attempts.",
	})

	QueuePublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_publish_failures_total",
		Help: "Activity events that could not be queued.",
	})

	ActivityRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_recorded_total",
		Help: "Activity events persisted by the worker, by type.",
	}, []string{"type"})
)
