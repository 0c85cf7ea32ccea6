// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package metrics exposes Prometheus instrumentation for the ingestion
// path, the fan-out publisher, the websocket gateway, and the janitor.
// Metrics are served at /metrics in Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion and correlation.
	SignalsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_signals_ingested_total",
			Help: "Total signal reports processed, by correlation outcome",
		},
		[]string{"outcome"},
	)

	CorrelationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_correlation_duration_seconds",
			Help:    "Duration of the per-device correlation sequence",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_created_total",
			Help: "Total alerts created, by alert kind",
		},
		[]string{"kind"},
	)

	AlertsAcknowledged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_alerts_acknowledged_total",
			Help: "Total alert acknowledgement transitions",
		},
	)

	// Fan-out publisher.
	PublishedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_published_events_total",
			Help: "Total events published to the fan-out layer, by event type",
		},
		[]string{"type"},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_publish_failures_total",
			Help: "Total fan-out publish failures (dropped, never retried inline)",
		},
	)

	PublisherBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_publisher_breaker_state",
			Help: "Fan-out circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Websocket gateway.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_ws_sessions_active",
			Help: "Currently connected websocket sessions, by session kind",
		},
		[]string{"kind"},
	)

	SessionMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_ws_messages_total",
			Help: "Inbound websocket messages, by command type",
		},
		[]string{"command"},
	)

	SlowClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_ws_slow_clients_dropped_total",
			Help: "Sessions disconnected because their send buffer filled",
		},
	)

	// Buffer janitor.
	JanitorSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_janitor_sweeps_total",
			Help: "Completed janitor sweep cycles",
		},
	)

	JanitorRecordsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_janitor_records_deleted_total",
			Help: "Buffered signal records removed past the retention horizon",
		},
	)

	// HTTP surface.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveCorrelation records one correlation pass.
func ObserveCorrelation(start time.Time, outcome string) {
	CorrelationDuration.Observe(time.Since(start).Seconds())
	SignalsIngested.WithLabelValues(outcome).Inc()
}
