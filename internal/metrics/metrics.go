package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoenergy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecoenergy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Ingest metrics
	MeasurementsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoenergy_measurements_ingested_total",
			Help: "Total number of measurements recorded",
		},
		[]string{"source", "status"}, // status: accepted, rejected, failed
	)

	ImportBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoenergy_import_batch_size",
			Help:    "Size of measurement import batches",
			Buckets: []float64{1, 10, 100, 500, 1000, 5000, 10000},
		},
	)

	// Evaluation metrics
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoenergy_alert_evaluations_total",
			Help: "Total number of alert evaluations",
		},
		[]string{"outcome"}, // outcome: fired, no_match, no_product, error
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoenergy_alert_evaluation_duration_seconds",
			Help:    "Alert evaluation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	EventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoenergy_alert_events_created_total",
			Help: "Total number of alert events created",
		},
		[]string{"severity"},
	)

	EventConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecoenergy_alert_event_conflicts_total",
			Help: "Evaluations that found the alert event already recorded",
		},
	)

	EventsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecoenergy_alert_events_resolved_total",
			Help: "Total number of alert events resolved",
		},
	)

	// Bus metrics
	BusPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoenergy_bus_publishes_total",
			Help: "Total number of bus publish attempts",
		},
		[]string{"driver", "status"},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoenergy_cache_lookups_total",
			Help: "Dashboard cache lookups",
		},
		[]string{"driver", "result"}, // result: hit, miss, error
	)
)
