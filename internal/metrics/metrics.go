// Package metrics holds the Prometheus collectors for the manifest, the
// ingest pipeline and query evaluation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "evidence"

const (
	// OutcomeNew labels documents registered for the first time.
	OutcomeNew = "new"
	// OutcomeDuplicate labels documents already in the manifest.
	OutcomeDuplicate = "duplicate"
	// OutcomeFailed labels documents whose processing failed.
	OutcomeFailed = "failed"
)

var (
	manifestChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_checks_total",
			Help:      "Dedup checks against the manifest, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	manifestFlushSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "manifest_flush_seconds",
			Help:      "Manifest persistence latency in seconds, partitioned by backend.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend"},
	)

	manifestFlushFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_flush_failures_total",
			Help:      "Manifest writes that failed after all retries.",
		},
		[]string{"backend"},
	)

	ingestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Documents handled by the ingest pipeline, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Query evaluations, partitioned by intent and confidence type.",
		},
		[]string{"intent", "confidence_type"},
	)

	evaluationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_seconds",
			Help:      "Query evaluation latency in seconds.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		},
	)

	conflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Evaluations whose numeric sources disagreed beyond the threshold.",
		},
	)

	degradedSourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_sources_total",
			Help:      "Sources enriched with a documented default or omission, partitioned by reason.",
		},
		[]string{"reason"},
	)
)

// Register attaches the collectors to the supplied Prometheus registerer.
// Collectors that are already registered are skipped.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		manifestChecksTotal,
		manifestFlushSeconds,
		manifestFlushFailuresTotal,
		ingestDocumentsTotal,
		evaluationsTotal,
		evaluationSeconds,
		conflictsTotal,
		degradedSourcesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveManifestCheck counts one dedup check.
func ObserveManifestCheck(duplicate bool) {
	outcome := OutcomeNew
	if duplicate {
		outcome = OutcomeDuplicate
	}
	manifestChecksTotal.WithLabelValues(outcome).Inc()
}

// ObserveManifestFlush records one persistence attempt sequence for backend.
func ObserveManifestFlush(backend string, duration time.Duration, err error) {
	if duration < 0 {
		duration = 0
	}
	manifestFlushSeconds.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		manifestFlushFailuresTotal.WithLabelValues(backend).Inc()
	}
}

// ObserveIngestDocument counts one document by outcome.
func ObserveIngestDocument(outcome string) {
	switch outcome {
	case OutcomeNew, OutcomeDuplicate:
	default:
		outcome = OutcomeFailed
	}
	ingestDocumentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEvaluation records one query evaluation.
func ObserveEvaluation(duration time.Duration, intent, confidenceType string, conflict bool) {
	evaluationsTotal.WithLabelValues(intent, confidenceType).Inc()
	if duration < 0 {
		duration = 0
	}
	evaluationSeconds.Observe(duration.Seconds())
	if conflict {
		conflictsTotal.Inc()
	}
}

// ObserveDegradedSource counts one degraded source field.
func ObserveDegradedSource(reason string) {
	degradedSourcesTotal.WithLabelValues(reason).Inc()
}
