package evolution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evolution_runs_total",
		Help: "Completed evolution runs by strategy and outcome.",
	}, []string{"strategy", "converged"})

	runIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evolution_run_iterations",
		Help:    "Iterations used per evolution run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 9),
	})

	retunesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evolution_diffusion_retunes_total",
		Help: "Diffusion parameter retunes applied during runs.",
	})
)
