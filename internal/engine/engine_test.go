package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/diffusion"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operators"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

func newEngine(t *testing.T, cfg config.Config, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithLogger(zap.NewNop()), WithSimulatorOptions(diffusion.WithSeed(1))}
	e, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineEndToEnd(t *testing.T) {
	e := newEngine(t, config.Default())
	require.True(t, e.Registry.Sealed())

	req := orchestrator.SynthesisRequest{
		Intent:  "reduce technical debt",
		Context: orchestrator.SynthesisContext{Domain: orchestrator.DomainDebt},
		Input:   map[string]float64{state.FieldDebt: 0.8, state.FieldMaintainability: 0.4},
	}
	pipeline, warnings := e.Orchestrator.GeneratePipeline(req)
	require.Empty(t, warnings)
	req.Pipeline = pipeline

	resp, err := e.Orchestrator.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Metadata.Errors)
	assert.Len(t, resp.Stages, len(pipeline))

	tallies, err := e.Orchestrator.Memory().Tallies(pipeline)
	require.NoError(t, err)
	assert.Equal(t, 1, tallies[operators.IDObserve].Successes)

	initial := state.NewVector(map[string]float64{state.FieldDebt: 0.8, state.FieldMaintainability: 0.4})
	res, err := e.Controller.RunStrategy(context.Background(), initial, "debt-reduction", 0)
	require.NoError(t, err)
	assert.Less(t, res.Final.Fields[state.FieldDebt], 0.8)

	cur, err := e.Store.GetCurrent()
	require.NoError(t, err)
	assert.Equal(t, res.VersionID, cur.VersionID)

	entries, err := logging.ListDecisions(e.Store.DB(), "debt-reduction", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEngineRegistersExtraOperators(t *testing.T) {
	extra := operators.Builtin{
		Descriptor: operator.Descriptor{
			ID: "echo", Symbol: "E", Triad: operator.TriadProcedural,
			Category: operator.CategoryFoundational, Complexity: 1, Stability: 1,
			Dependencies: []string{operators.IDObserve},
		},
		Executable: operator.ExecutableFunc(func(_ context.Context, ec *operator.ExecutionContext) (operator.Output, error) {
			return operator.NewOutput(ec.Input, 1), nil
		}),
	}
	e := newEngine(t, config.Default(), WithOperators(extra))
	assert.True(t, e.Registry.Has("echo"))
}

func TestEngineRejectsBadGraph(t *testing.T) {
	orphan := operators.Builtin{
		Descriptor: operator.Descriptor{
			ID: "orphan", Symbol: "O", Triad: operator.TriadProcedural,
			Category: operator.CategoryFoundational, Complexity: 1, Stability: 1,
			Dependencies: []string{"missing"},
		},
		Executable: operator.ExecutableFunc(func(context.Context, *operator.ExecutionContext) (operator.Output, error) {
			return operator.Output{}, nil
		}),
	}
	_, err := New(config.Default(), WithLogger(zap.NewNop()), WithOperators(orphan))
	assert.True(t, errors.Is(err, operator.ErrUnresolvedDependency), "got %v", err)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = ""
	_, err := New(cfg, WithLogger(zap.NewNop()))
	assert.True(t, errors.Is(err, operator.ErrValidation))
}

func TestEngineMissingStrategiesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Evolution.StrategiesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg, WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestEngineFileStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "engine.db")
	e := newEngine(t, cfg)

	_, err := e.Controller.RunStrategy(context.Background(), state.DefaultVector(), "stabilization", 2)
	require.NoError(t, err)

	versions, err := e.Store.ListVersions(5)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}
