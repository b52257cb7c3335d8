// Package metrics declares the Prometheus collectors shared by the worker,
// crawler and prediction server processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "product_comb"

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Jobs settled per queue and final state of the attempt",
		},
		[]string{"queue", "state"},
	)

	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs published per queue",
		},
		[]string{"queue"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Handler run time per queue",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"queue"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Jobs waiting to be delivered",
		},
		[]string{"queue"},
	)

	ExtractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "extract",
			Name:      "outcomes_total",
			Help:      "Extraction outcomes per table",
		},
		[]string{"table", "outcome"},
	)

	ThresholdDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "classify",
			Name:      "threshold_decisions_total",
			Help:      "Threshold decisions per model and result",
		},
		[]string{"model", "result"},
	)

	CrawlRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "crawl",
			Name:      "requests_total",
			Help:      "Crawl requests per table and result",
		},
		[]string{"table", "result"},
	)

	GateCooldowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "crawl",
			Name:      "gate_cooldowns_total",
			Help:      "Cooldown windows opened by the rate gate per source",
		},
		[]string{"source"},
	)

	PredictionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "predict",
			Name:      "requests_total",
			Help:      "Prediction service requests per endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)
