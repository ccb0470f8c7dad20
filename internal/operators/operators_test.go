package operators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/registry"
)

func sealed(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	require.NoError(t, reg.ValidateDependencyGraph())
	return reg
}

// run executes observe then id on input, the way a pipeline would.
func run(t *testing.T, reg *registry.Registry, id string, input any, opts ...operator.ContextOption) operator.Result {
	t.Helper()
	ec := operator.NewExecutionContext(input, opts...)
	first := reg.Execute(context.Background(), IDObserve, ec.Stage(input))
	require.True(t, first.Success, first.Errors)
	ec.Append(first)
	if id == IDObserve {
		return first
	}
	return reg.Execute(context.Background(), id, ec.Stage(first.Payload))
}

func TestBuiltinsRegisterAndValidate(t *testing.T) {
	reg := sealed(t)
	stats := reg.Statistics()
	assert.Equal(t, len(Builtins()), stats.Total)
	assert.Equal(t, 1, stats.ByCategory[operator.CategoryGovernance])

	dup := registry.New()
	require.NoError(t, RegisterBuiltins(dup))
	assert.ErrorIs(t, RegisterBuiltins(dup), operator.ErrValidation)
}

func TestObserveCopiesInput(t *testing.T) {
	reg := sealed(t)
	res := run(t, reg, IDObserve, map[string]any{"quality": 0.4, "label": "x"})
	require.True(t, res.Success)
	assert.Equal(t, map[string]float64{"quality": 0.4}, res.Payload)
	assert.Equal(t, 1.0, res.Metadata.Confidence)
}

func TestObserveRejectsNonNumeric(t *testing.T) {
	reg := sealed(t)
	ec := operator.NewExecutionContext("text")
	res := reg.Execute(context.Background(), IDObserve, ec)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrOperatorFailure)
}

func TestShapingMovesTowardGoal(t *testing.T) {
	reg := sealed(t)
	in := map[string]float64{"quality": 0.4, "maintainability": 0.6, "debt": 0.5}

	res := run(t, reg, IDRefine, in)
	require.True(t, res.Success, res.Errors)
	out := res.Payload.(map[string]float64)
	assert.InDelta(t, 0.7, out["quality"], 1e-12)
	assert.InDelta(t, 0.8, out["maintainability"], 1e-12)
	assert.Equal(t, 0.5, out["debt"])

	res = run(t, reg, IDReduceDebt, in)
	require.True(t, res.Success)
	assert.InDelta(t, 0.25, res.Payload.(map[string]float64)["debt"], 1e-12)
}

func TestShapingHonorsTargetsAndGain(t *testing.T) {
	reg := sealed(t)
	in := map[string]float64{"coherence": 0.2}
	res := run(t, reg, IDAlign, in, operator.WithConfig(map[string]any{
		ConfigTargets: map[string]float64{"coherence": 0.6},
		ConfigGain:    0.25,
	}))
	require.True(t, res.Success)
	assert.InDelta(t, 0.3, res.Payload.(map[string]float64)["coherence"], 1e-12)
}

func TestShapingAtGoalIsFixedPoint(t *testing.T) {
	reg := sealed(t)
	in := map[string]float64{"consistency": 0.8}
	res := run(t, reg, IDStabilize, in, operator.WithConfig(map[string]any{
		ConfigTargets: map[string]any{"consistency": 0.8},
	}))
	require.True(t, res.Success)
	assert.Equal(t, 0.8, res.Payload.(map[string]float64)["consistency"])
	// stability 0.95 × inner 1
	assert.InDelta(t, 0.95, res.Metadata.Confidence, 1e-12)
}

func TestAssessScores(t *testing.T) {
	reg := sealed(t)
	res := run(t, reg, IDAssess, map[string]float64{"quality": 0.8, "debt": 0.4, "other": 5})
	require.True(t, res.Success)
	out := res.Payload.(map[string]float64)
	assert.InDelta(t, 0.7, out["score"], 1e-12)
	assert.Equal(t, 5.0, out["other"])
}

func TestAuditConfidenceIsValidFraction(t *testing.T) {
	reg := sealed(t)
	res := run(t, reg, IDAudit, map[string]float64{"a": 0.5, "b": 2, "c": 0.1, "d": -1})
	require.True(t, res.Success)
	assert.InDelta(t, 0.5, res.Metadata.Confidence, 1e-12)
}

func TestShapingRequiresObserve(t *testing.T) {
	reg := sealed(t)
	ec := operator.NewExecutionContext(map[string]float64{"quality": 0.1})
	res := reg.Execute(context.Background(), IDRefine, ec)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrDependencyUnsatisfied)
}
