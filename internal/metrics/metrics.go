// ABOUTME: Prometheus collectors for ingestion, aggregation and backfill.
// ABOUTME: Registered on the default registry and served by the /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingress
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscore_webhook_deliveries_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"}, // "ok", "too_large", "malformed", "unauthorized", "ignored", "storage_error"
	)

	PayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthscore_webhook_payload_bytes",
			Help:    "Size of accepted webhook bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. 256MiB
		},
	)

	DegradedPayloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthscore_webhook_degraded_total",
			Help: "Payloads above the soft limit that were stripped before extraction",
		},
	)

	// Extraction and storage
	ExtractedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscore_extracted_entries_total",
			Help: "Data entries seen by the extractor by result",
		},
		[]string{"result"}, // "record", "unmapped", "no_enrichment"
	)

	EnrichmentUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscore_enrichment_upserts_total",
			Help: "Per-device enrichment upserts by status",
		},
		[]string{"status"},
	)

	// Aggregation
	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscore_aggregations_total",
			Help: "Daily aggregations by result",
		},
		[]string{"result"}, // "written", "empty", "error"
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthscore_aggregation_duration_seconds",
			Help:    "Duration of one read-merge-write aggregation",
			Buckets: prometheus.DefBuckets,
		},
	)

	PendingAggregationFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthscore_aggregation_failures_pending",
			Help: "Aggregation failures recorded in the diagnostics sink and not yet repaired",
		},
	)

	// Backfill
	BackfillPairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthscore_backfill_pairs_total",
			Help: "User-date pairs handled by backfill runs by result",
		},
		[]string{"result"}, // "processed", "failed", "skipped"
	)

	// HTTP
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthscore_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordAggregation records one aggregation attempt.
func RecordAggregation(written bool, duration time.Duration, err error) {
	AggregationDuration.Observe(duration.Seconds())
	switch {
	case err != nil:
		AggregationRuns.WithLabelValues("error").Inc()
	case written:
		AggregationRuns.WithLabelValues("written").Inc()
	default:
		AggregationRuns.WithLabelValues("empty").Inc()
	}
}

// RecordUpsert records one enrichment upsert.
func RecordUpsert(err error) {
	if err != nil {
		EnrichmentUpserts.WithLabelValues("error").Inc()
		return
	}
	EnrichmentUpserts.WithLabelValues("ok").Inc()
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
