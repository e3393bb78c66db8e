package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"logforge/internal/batch"
)

// Pipeline counters and histograms, partitioned by stage.

var (
	StageItemsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "stage",
		Name:      "items_read_total",
		Help:      "Total items read by a pipeline stage",
	}, []string{"stage"})

	StageItemsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "stage",
		Name:      "items_written_total",
		Help:      "Total items written by a pipeline stage",
	}, []string{"stage"})

	StageItemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "stage",
		Name:      "items_skipped_total",
		Help:      "Total items skipped by a pipeline stage",
	}, []string{"stage"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "stage",
		Name:      "failures_total",
		Help:      "Total failed partitions or fatal stage errors",
	}, []string{"stage"})

	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "logforge",
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Pipeline stage duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"stage"})

	// Fetcher
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "fetcher",
		Name:      "attempts_total",
		Help:      "Total external fetch attempts by outcome",
	}, []string{"outcome"})

	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "logforge",
		Subsystem: "fetcher",
		Name:      "attempt_duration_seconds",
		Help:      "External fetch attempt duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})

	FetchPermitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "fetcher",
		Name:      "permit_waits_total",
		Help:      "Fetch calls that had to wait for a free permit",
	})

	// Runner
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logforge",
		Subsystem: "runner",
		Name:      "runs_total",
		Help:      "Total pipeline runs by final status",
	}, []string{"status"})
)

// StageHooks returns hooks that feed stage reports into the counters above.
func StageHooks() batch.Hooks {
	return batch.Hooks{
		OnComplete: func(r batch.StageReport) {
			stage := r.Stage
			StageItemsRead.WithLabelValues(stage).Add(float64(r.Read))
			StageItemsWritten.WithLabelValues(stage).Add(float64(r.Written))
			StageItemsSkipped.WithLabelValues(stage).Add(float64(r.Skipped))
			StageFailures.WithLabelValues(stage).Add(float64(r.Failures))
			StageLatency.WithLabelValues(stage).Observe(r.Duration.Seconds())
		},
	}
}
