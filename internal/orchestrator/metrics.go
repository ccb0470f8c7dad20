package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evolution_pipeline_runs_total",
		Help: "Pipeline runs by overall success.",
	}, []string{"success"})

	pipelineCoherence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evolution_pipeline_coherence",
		Help:    "Weighted coherence of completed pipelines.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evolution_pipeline_stage_failures_total",
		Help: "Failed pipeline stages by operator.",
	}, []string{"operator"})
)
