package update

import "github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"

// #region decision
// Decision records what the fold decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// FieldMetric captures the change applied to one field.
type FieldMetric struct {
	Name    string
	Delta   float64
	Samples int // outputs that carried this field
}

// Metrics captures telemetry from one fold.
type Metrics struct {
	DeltaNorm    float64
	FieldsHit    []string
	FieldMetrics []FieldMetric
	Clipped      bool // MaxDeltaNorm scaled the step down
	UpdateTimeMs int64
}

// #endregion metrics

// #region update-config
// Config holds the damping parameters for Fold.
type Config struct {
	Damping      float64 // fraction of the raw delta applied per output (default 0.1)
	MaxDeltaNorm float64 // L2 cap on the combined step (0 = disabled)
}

// DefaultConfig returns the damping used by the evolution loop.
func DefaultConfig() Config {
	return Config{
		Damping:      0.1,
		MaxDeltaNorm: 0,
	}
}

// #endregion update-config

// #region update-result
// UpdateResult bundles everything returned by Fold().
type UpdateResult struct {
	NewState state.Vector
	Decision Decision
	Metrics  Metrics
}

// #endregion update-result
