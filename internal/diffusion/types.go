package diffusion

import (
	"math"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

// #region constants

// DefaultTolerance is how close to θ a value must get to count as converged.
const DefaultTolerance = 0.01

// #endregion

// #region parameters

// Parameters define a mean-reverting process dX = κ(θ−X)dt + σdW.
type Parameters struct {
	Kappa   float64 `yaml:"kappa"`   // reversion rate, > 0
	Theta   float64 `yaml:"theta"`   // equilibrium
	Sigma   float64 `yaml:"sigma"`   // noise scale, >= 0
	Dt      float64 `yaml:"dt"`      // step size, in (0, 1]
	Initial float64 `yaml:"initial"` // starting value
}

// Validate enforces κ>0, σ≥0 and dt∈(0,1].
func (p Parameters) Validate() error {
	for name, v := range map[string]float64{"kappa": p.Kappa, "theta": p.Theta, "sigma": p.Sigma, "dt": p.Dt, "initial": p.Initial} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return operator.Errorf(operator.KindParameter, "diffusion", "", "%s must be finite, got %v", name, v)
		}
	}
	if p.Kappa <= 0 {
		return operator.Errorf(operator.KindParameter, "diffusion", "", "kappa must be > 0, got %v", p.Kappa)
	}
	if p.Sigma < 0 {
		return operator.Errorf(operator.KindParameter, "diffusion", "", "sigma must be >= 0, got %v", p.Sigma)
	}
	if p.Dt <= 0 || p.Dt > 1 {
		return operator.Errorf(operator.KindParameter, "diffusion", "", "dt must be in (0, 1], got %v", p.Dt)
	}
	return nil
}

// #endregion

// #region bounds

// Bounds clamp what OptimizeParameters may set κ and σ to.
type Bounds struct {
	KappaMin float64 `yaml:"kappa_min"`
	KappaMax float64 `yaml:"kappa_max"`
	SigmaMin float64 `yaml:"sigma_min"`
	SigmaMax float64 `yaml:"sigma_max"`
}

// DefaultBounds returns the bounds used when none are configured.
func DefaultBounds() Bounds {
	return Bounds{
		KappaMin: 0.05,
		KappaMax: 5.0,
		SigmaMin: 0.001,
		SigmaMax: 0.5,
	}
}

// Apply clamps p's κ and σ into b.
func (b Bounds) Apply(p Parameters) Parameters {
	p.Kappa = clampRange(p.Kappa, b.KappaMin, b.KappaMax)
	p.Sigma = clampRange(p.Sigma, b.SigmaMin, b.SigmaMax)
	return p
}

// #endregion

// #region state

// State is one point of a simulated path. Drift, Diffusion, Deviation and
// RestoringForce describe the step that produced Value; they are zero for the
// initial point.
type State struct {
	Step           int
	Time           float64
	Value          float64
	Drift          float64 // κ(θ−x)dt
	Diffusion      float64 // σΔW
	Deviation      float64 // |θ−x|
	RestoringForce float64 // κ|θ−x|
}

// Trajectory is the output of one Evolve call.
type Trajectory struct {
	States     []State
	Theta      float64
	TotalTime  float64
	FinalValue float64
	Converged  bool
	NetDelta   float64
}

// Values returns the Value of every state in order.
func (t Trajectory) Values() []float64 {
	out := make([]float64, len(t.States))
	for i, s := range t.States {
		out[i] = s.Value
	}
	return out
}

// #endregion

// #region prediction

// Prediction is the closed-form view of the process at a horizon.
type Prediction struct {
	Horizon           float64
	Mean              float64
	Variance          float64
	StdDev            float64
	Confidence        float64
	TimeToConvergence float64 // 0 when already within tolerance
}

// #endregion

// #region optimization

// Optimization reports what OptimizeParameters observed and changed.
type Optimization struct {
	Previous        Parameters
	Next            Parameters
	ConvergenceTime float64
	TargetTime      float64
	Variance        float64
	Stability       float64
	KappaAdjusted   bool
	SigmaAdjusted   bool
}

// #endregion
