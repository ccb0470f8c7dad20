package diffusion

import (
	"math"

	"go.uber.org/zap"
)

// #region predict

// PredictFutureState evaluates the process in closed form at horizon (in time
// units, not steps):
//
//	mean     = θ + (x−θ)e^{−κh}
//	variance = σ²/(2κ) · (1 − e^{−2κh})
//
// Confidence is 1/(1+10·stddev). TimeToConvergence solves
// |x−θ|e^{−κt} = tolerance for t and is 0 when x is already within tolerance,
// which also covers x == θ where the logarithm would diverge.
func (s *Simulator) PredictFutureState(current, horizon float64) Prediction {
	return Predict(s.Parameters(), s.tolerance, current, horizon)
}

// Predict is PredictFutureState for explicit parameters and tolerance. It
// touches no simulator state.
func Predict(p Parameters, tol, current, horizon float64) Prediction {
	if horizon < 0 {
		horizon = 0
	}
	decay := math.Exp(-p.Kappa * horizon)
	mean := p.Theta + (current-p.Theta)*decay
	variance := (p.Sigma * p.Sigma / (2 * p.Kappa)) * (1 - math.Exp(-2*p.Kappa*horizon))
	std := math.Sqrt(variance)

	return Prediction{
		Horizon:           horizon,
		Mean:              mean,
		Variance:          variance,
		StdDev:            std,
		Confidence:        1 / (1 + 10*std),
		TimeToConvergence: timeToConvergence(p.Kappa, math.Abs(current-p.Theta), tol),
	}
}

func timeToConvergence(kappa, deviation, tol float64) float64 {
	if deviation <= tol {
		return 0
	}
	return math.Log(deviation/tol) / kappa
}

// #endregion

// #region convergence-time

// ConvergenceTime returns the time of the first state within tolerance of the
// trajectory's θ. ok is false when the trajectory never gets there.
func (s *Simulator) ConvergenceTime(t Trajectory) (float64, bool) {
	for _, st := range t.States {
		if math.Abs(st.Value-t.Theta) <= s.tolerance {
			return st.Time, true
		}
	}
	return 0, false
}

// #endregion

// #region optimize

// OptimizeParameters retunes κ and σ from an observed trajectory and installs
// the result.
//
// κ: if the trajectory reached tolerance more than 20% later than
// targetTime, κ grows by 20%; more than 20% earlier, it shrinks by 20%. A
// trajectory that never converged is charged its total time plus the
// closed-form time still needed from its final value.
//
// σ: stability = 1 − min(10·var(values), 1). Above 0.9, σ grows by 10%;
// below 0.7, it shrinks by 10%. Both are clamped to the configured bounds.
func (s *Simulator) OptimizeParameters(t Trajectory, targetTime float64) (Optimization, error) {
	prev := s.Parameters()
	next := prev

	actual, ok := s.ConvergenceTime(t)
	if !ok {
		actual = t.TotalTime + timeToConvergence(prev.Kappa, math.Abs(t.FinalValue-t.Theta), s.tolerance)
	}

	opt := Optimization{
		Previous:        prev,
		ConvergenceTime: actual,
		TargetTime:      targetTime,
	}

	if targetTime > 0 {
		switch {
		case actual > targetTime*1.2:
			next.Kappa = math.Min(prev.Kappa*1.2, s.bounds.KappaMax)
		case actual < targetTime*0.8:
			next.Kappa = math.Max(prev.Kappa*0.8, s.bounds.KappaMin)
		}
	}

	opt.Variance = variance(t.Values())
	opt.Stability = 1 - math.Min(10*opt.Variance, 1)
	switch {
	case opt.Stability > 0.9:
		next.Sigma = clampRange(prev.Sigma*1.1, s.bounds.SigmaMin, s.bounds.SigmaMax)
	case opt.Stability < 0.7:
		next.Sigma = clampRange(prev.Sigma*0.9, s.bounds.SigmaMin, s.bounds.SigmaMax)
	}

	opt.KappaAdjusted = next.Kappa != prev.Kappa
	opt.SigmaAdjusted = next.Sigma != prev.Sigma
	opt.Next = next

	if err := s.SetParameters(next); err != nil {
		return opt, err
	}

	s.logger.Debug("parameters retuned",
		zap.Float64("kappa", next.Kappa),
		zap.Float64("sigma", next.Sigma),
		zap.Float64("convergence_time", actual),
		zap.Float64("target_time", targetTime),
		zap.Float64("stability", opt.Stability))
	return opt, nil
}

// #endregion

// #region stats

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion
