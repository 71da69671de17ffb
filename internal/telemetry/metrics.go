// Package telemetry exposes prometheus collectors and the health/metrics endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts handled queue messages by normalizer outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adswatcher_messages_total",
			Help: "Total number of stream messages handled, by outcome",
		},
		[]string{"outcome"}, // processed, duplicate, rejected, transient
	)

	// AcknowledgedTotal counts messages deleted from the queue.
	AcknowledgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adswatcher_messages_acknowledged_total",
			Help: "Total number of messages acknowledged on the queue",
		},
	)

	// PollErrorsTotal counts failed queue receives and deletes.
	PollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adswatcher_queue_errors_total",
			Help: "Total number of queue operation failures",
		},
		[]string{"operation"}, // receive, delete
	)

	// BatchSize observes received batch sizes.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adswatcher_batch_size",
			Help:    "Number of messages per received batch",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
	)

	// AlertsTotal counts raised alerts by type and delivery status.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adswatcher_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"alert_type", "severity", "sent"},
	)

	// AggregatesTotal counts aggregates created by period.
	AggregatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adswatcher_aggregates_created_total",
			Help: "Total number of aggregates created",
		},
		[]string{"period"},
	)

	// JobDuration observes scheduled job latency.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adswatcher_job_duration_seconds",
			Help:    "Duration of scheduled jobs in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"job"}, // poll, hourly, daily
	)
)
