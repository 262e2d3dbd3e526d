// Package telemetry observes the read and write paths of the retrieval
// core: Prometheus metrics for operations, plus an in-memory recorder that
// aggregates per-query rank-quality signals into a summary.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "corpus"

// Metrics holds the Prometheus instruments of the retrieval core. Pass a
// dedicated registry in tests to avoid cross-test collisions.
type Metrics struct {
	QueryDuration   prometheus.Histogram
	QueriesTotal    prometheus.Counter
	QueryResults    prometheus.Histogram
	IngestDuration  prometheus.Histogram
	IngestChunks    *prometheus.CounterVec
	RerankSkips     prometheus.Counter
	DecayUpdates    prometheus.Counter
	CollectionSizes *prometheus.GaugeVec
}

// NewMetrics registers the retrieval metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end retrieval query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total retrieval queries served.",
		}),
		QueryResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of candidates returned per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Per-document ingestion latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		IngestChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunk outcomes during ingestion.",
		}, []string{"status"}),
		RerankSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_skips_total",
			Help:      "Queries where the rerank pass was skipped or degraded.",
		}),
		DecayUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decay_updates_total",
			Help:      "Chunk decay-weight updates written by the sweeper.",
		}),
		CollectionSizes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_chunks",
			Help:      "Current chunk count per collection.",
		}, []string{"collection"}),
	}
}

// ObserveQuery records one served query on the Prometheus side.
func (m *Metrics) ObserveQuery(latency time.Duration, results int) {
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(latency.Seconds())
	m.QueryResults.Observe(float64(results))
}

// ObserveIngest records one ingestion run.
func (m *Metrics) ObserveIngest(latency time.Duration, written, duplicates, rejected int) {
	m.IngestDuration.Observe(latency.Seconds())
	m.IngestChunks.WithLabelValues("written").Add(float64(written))
	m.IngestChunks.WithLabelValues("duplicate").Add(float64(duplicates))
	m.IngestChunks.WithLabelValues("rejected").Add(float64(rejected))
}
