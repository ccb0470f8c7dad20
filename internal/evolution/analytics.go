package evolution

import "github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"

// #region analytics

// Analytics summarizes the retained history.
//
// MeanImprovement averages each field's delta over the runs that carried it,
// with debt negated so that a positive number is always an improvement.
// StrategyEffectiveness sums 1 per converged run and 0.5 per run that hit its
// cap.
func (c *Controller) Analytics() Analytics {
	runs := c.History()
	a := Analytics{
		TotalRuns:             len(runs),
		MeanImprovement:       map[string]float64{},
		StrategyEffectiveness: map[string]float64{},
	}
	if len(runs) == 0 {
		return a
	}

	var converged, iterations int
	counts := map[string]int{}
	for _, r := range runs {
		if r.Converged {
			converged++
			a.StrategyEffectiveness[r.Strategy] += 1
		} else {
			a.StrategyEffectiveness[r.Strategy] += 0.5
		}
		iterations += r.Iterations
		for field, d := range r.Deltas {
			if field == state.FieldDebt {
				d = -d
			}
			a.MeanImprovement[field] += d
			counts[field]++
		}
	}
	for field, n := range counts {
		a.MeanImprovement[field] /= float64(n)
	}
	a.ConvergenceRate = float64(converged) / float64(len(runs))
	a.MeanIterations = float64(iterations) / float64(len(runs))
	return a
}

// #endregion
