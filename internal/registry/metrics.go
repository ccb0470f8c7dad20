package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evolution_operator_executions_total",
		Help: "Operator executions by operator id and outcome",
	}, []string{"operator", "outcome"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evolution_operator_duration_seconds",
		Help:    "Operator execution latency",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 30},
	}, []string{"operator"})
)
