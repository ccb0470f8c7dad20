package evolution

import (
	"time"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/diffusion"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region strategy

// DefaultThreshold applies to target fields without an explicit threshold.
const DefaultThreshold = 0.05

// Strategy is a named target plus the pipeline that drives a state toward it.
type Strategy struct {
	Name          string             `yaml:"name" validate:"required"`
	Description   string             `yaml:"description"`
	Primary       string             `yaml:"primary" validate:"required"`
	Target        map[string]float64 `yaml:"target" validate:"required,min=1,dive,gte=0,lte=1"`
	Thresholds    map[string]float64 `yaml:"thresholds" validate:"dive,gt=0,lte=1"`
	MaxIterations int                `yaml:"max_iterations" validate:"gte=1"`
	Pipeline      []string           `yaml:"pipeline" validate:"required,min=1,dive,required"`
}

// Threshold returns the convergence tolerance for field.
func (s Strategy) Threshold(field string) float64 {
	if t, ok := s.Thresholds[field]; ok {
		return t
	}
	return DefaultThreshold
}

// Converged reports whether every target field of v is within its threshold.
func (s Strategy) Converged(v state.Vector) bool {
	for field, target := range s.Target {
		x, ok := v.Get(field)
		if !ok || abs(x-target) > s.Threshold(field) {
			return false
		}
	}
	return true
}

// #endregion

// #region result

// Result is the outcome of one run, or of a sequence of runs.
type Result struct {
	RunID             string
	Strategy          string
	Initial           state.Vector
	Final             state.Vector
	Trajectory        diffusion.Trajectory // primary field, one state per iteration
	StrategiesApplied []string
	Iterations        int
	Converged         bool
	Deltas            map[string]float64
	Duration          time.Duration
	Parameters        diffusion.Parameters // simulator parameters at the end of the run
	FailedStages      int
	Retunes           int
	VersionID         string   // state version committed for Final, when a store is set
	Runs              []Result // per-strategy results of a sequence
}

// #endregion

// #region prediction

// Prediction approximates a run in closed form.
type Prediction struct {
	Strategy            string
	Horizon             int // iterations
	Predicted           state.Vector
	ExpectedImprovement map[string]float64 // reduction of |target−x| per target field
	Confidence          float64
	TimeToConvergence   float64 // slowest target field, in time units
	Parameters          diffusion.Parameters
}

// #endregion

// #region analytics

// Analytics aggregates the run history.
type Analytics struct {
	TotalRuns             int
	ConvergenceRate       float64
	MeanImprovement       map[string]float64
	StrategyEffectiveness map[string]float64
	MeanIterations        float64
}

// #endregion

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
