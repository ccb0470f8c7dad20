package evolution

import (
	"math"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/diffusion"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region predict-outcome

// PredictOutcome approximates where the named strategy would take initial
// after horizon iterations (the strategy's cap when horizon <= 0). Each
// target field is evaluated in closed form with the parameters a run would
// start from. Nothing is simulated and neither the simulator nor the history
// is touched.
func (c *Controller) PredictOutcome(initial state.Vector, name string, horizon int) (Prediction, error) {
	s, err := c.Strategy(name)
	if err != nil {
		return Prediction{}, err
	}
	if horizon <= 0 {
		horizon = s.MaxIterations
	}

	cur := withTargets(initial, s)
	params := c.deriveParameters(cur, s)
	t := float64(horizon) * params.Dt

	pred := Prediction{
		Strategy:            s.Name,
		Horizon:             horizon,
		Predicted:           cur.Clone(),
		ExpectedImprovement: make(map[string]float64, len(s.Target)),
		Parameters:          params,
	}

	var confidence float64
	for _, field := range sortedKeys(s.Target) {
		target := s.Target[field]
		x := cur.Fields[field]

		p := params
		p.Theta = target
		p.Initial = x
		fp := diffusion.Predict(p, s.Threshold(field), x, t)

		mean := state.Clamp01(fp.Mean)
		pred.Predicted.Fields[field] = mean
		pred.ExpectedImprovement[field] = math.Abs(target-x) - math.Abs(target-mean)
		pred.TimeToConvergence = math.Max(pred.TimeToConvergence, fp.TimeToConvergence)
		confidence += fp.Confidence
	}
	pred.Confidence = confidence / float64(len(s.Target))
	return pred, nil
}

// #endregion
