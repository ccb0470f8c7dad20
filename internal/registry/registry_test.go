package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers

func desc(id string, deps ...string) operator.Descriptor {
	return operator.Descriptor{
		ID:           id,
		Symbol:       "Σ" + id,
		Triad:        operator.TriadProcedural,
		Category:     operator.CategoryFoundational,
		Scope:        "core",
		Description:  "test operator " + id,
		Complexity:   3,
		Stability:    0.9,
		Dependencies: deps,
	}
}

func constant(result any, confidence float64) operator.Executable {
	return operator.ExecutableFunc(func(context.Context, *operator.ExecutionContext) (operator.Output, error) {
		return operator.NewOutput(result, confidence), nil
	})
}

// #endregion

// #region register-tests

func TestRegisterRejectsInvalidDescriptors(t *testing.T) {
	cases := map[string]func(d *operator.Descriptor){
		"complexity zero":   func(d *operator.Descriptor) { d.Complexity = 0 },
		"complexity eleven": func(d *operator.Descriptor) { d.Complexity = 11 },
		"stability below":   func(d *operator.Descriptor) { d.Stability = -0.1 },
		"stability above":   func(d *operator.Descriptor) { d.Stability = 1.1 },
		"unknown triad":     func(d *operator.Descriptor) { d.Triad = "intuitive" },
		"unknown category":  func(d *operator.Descriptor) { d.Category = "cosmic" },
		"empty symbol":      func(d *operator.Descriptor) { d.Symbol = "" },
		"mismatched id":     func(d *operator.Descriptor) { d.ID = "other" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := New()
			d := desc("A")
			mutate(&d)
			err := r.Register("A", d, constant(nil, 1))
			require.Error(t, err)
			assert.ErrorIs(t, err, operator.ErrValidation)
			assert.False(t, r.Has("A"))
		})
	}
}

func TestRegisterAcceptsBoundaryValues(t *testing.T) {
	r := New()
	low := desc("low")
	low.Complexity, low.Stability = 1, 0
	high := desc("high")
	high.Complexity, high.Stability = 10, 1

	require.NoError(t, r.Register("low", low, constant(nil, 1)))
	require.NoError(t, r.Register("high", high, constant(nil, 1)))
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A"), constant(nil, 1)))
	assert.ErrorIs(t, r.Register("A", desc("A"), constant(nil, 1)), operator.ErrValidation)
	assert.ErrorIs(t, r.Register("B", desc("B"), nil), operator.ErrValidation)
}

func TestRegisterAfterSealFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A"), constant(nil, 1)))
	require.NoError(t, r.ValidateDependencyGraph())
	assert.True(t, r.Sealed())

	err := r.Register("B", desc("B"), constant(nil, 1))
	assert.ErrorIs(t, err, operator.ErrValidation)
}

// #endregion

// #region graph-tests

func TestValidateDetectsCycle(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A", "B"), constant(nil, 1)))
	require.NoError(t, r.Register("B", desc("B", "A"), constant(nil, 1)))

	err := r.ValidateDependencyGraph()
	require.Error(t, err)
	assert.ErrorIs(t, err, operator.ErrCyclicDependency)
	assert.Contains(t, err.Error(), "A -> B -> A")
	assert.False(t, r.Sealed())
}

func TestValidateDetectsSelfLoop(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A", "A"), constant(nil, 1)))
	assert.ErrorIs(t, r.ValidateDependencyGraph(), operator.ErrCyclicDependency)
}

func TestValidateDetectsUnresolved(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A", "X"), constant(nil, 1)))

	err := r.ValidateDependencyGraph()
	require.Error(t, err)
	assert.ErrorIs(t, err, operator.ErrUnresolvedDependency)
	assert.Contains(t, err.Error(), `"X"`)
}

func TestValidateAcceptsDiamond(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("root", desc("root"), constant(nil, 1)))
	require.NoError(t, r.Register("left", desc("left", "root"), constant(nil, 1)))
	require.NoError(t, r.Register("right", desc("right", "root"), constant(nil, 1)))
	require.NoError(t, r.Register("join", desc("join", "left", "right"), constant(nil, 1)))
	require.NoError(t, r.ValidateDependencyGraph())

	order, err := r.Closure("join")
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "left", "right", "join"}, order)

	_, err = r.Closure("missing")
	assert.ErrorIs(t, err, operator.ErrNotFound)
}

// #endregion

// #region accessor-tests

func TestIndicesAndStatistics(t *testing.T) {
	r := New()
	a := desc("A")
	b := desc("B")
	b.Triad, b.Category, b.Scope, b.Complexity, b.Stability = operator.TriadHeuristic, operator.CategoryGovernance, "audit", 7, 0.5
	require.NoError(t, r.Register("A", a, constant(nil, 1)))
	require.NoError(t, r.Register("B", b, constant(nil, 1)))

	assert.Len(t, r.ByCategory(operator.CategoryFoundational), 1)
	assert.Equal(t, "B", r.ByTriad(operator.TriadHeuristic)[0].ID)
	assert.Equal(t, "B", r.ByScope("audit")[0].ID)
	assert.Empty(t, r.ByCategory(operator.CategoryDynamic))
	assert.Equal(t, []string{"A", "B"}, r.IDs())
	assert.Equal(t, []string{"audit", "core"}, r.Scopes())

	stats := r.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByTriad[operator.TriadHeuristic])
	assert.Equal(t, 1, stats.ByScope["core"])
	assert.InDelta(t, 5.0, stats.MeanComplexity, 1e-9)
	assert.InDelta(t, 0.7, stats.MeanStability, 1e-9)
}

func TestStatisticsEmpty(t *testing.T) {
	stats := New().Statistics()
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.MeanComplexity)
}

// #endregion

// #region execute-tests

func TestExecuteUnknownID(t *testing.T) {
	r := New()
	require.NoError(t, r.ValidateDependencyGraph())

	res := r.Execute(context.Background(), "ghost", operator.NewExecutionContext(nil))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrNotFound)
	assert.Contains(t, res.Errors[0], "not found")
	assert.Equal(t, "ghost", res.Metadata.OperatorID)
}

func TestExecuteBeforeValidateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A"), constant(1, 1)))

	res := r.Execute(context.Background(), "A", nil)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrValidation)
}

func TestExecuteTimesOut(t *testing.T) {
	const deadline = 50 * time.Millisecond
	r := New(WithTimeout(deadline))
	hang := operator.ExecutableFunc(func(ctx context.Context, _ *operator.ExecutionContext) (operator.Output, error) {
		<-ctx.Done()
		return operator.NewOutput("late", 1), nil
	})
	require.NoError(t, r.Register("hang", desc("hang"), hang))
	require.NoError(t, r.ValidateDependencyGraph())

	start := time.Now()
	res := r.Execute(context.Background(), "hang", operator.NewExecutionContext(nil))
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrExecutionTimeout)
	assert.Nil(t, res.Payload)
	assert.Less(t, elapsed, deadline+250*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, deadline)
}

func TestExecuteRecoversErrorsAndPanics(t *testing.T) {
	r := New()
	failing := operator.ExecutableFunc(func(context.Context, *operator.ExecutionContext) (operator.Output, error) {
		return operator.Output{}, errors.New("negative input")
	})
	panicking := operator.ExecutableFunc(func(context.Context, *operator.ExecutionContext) (operator.Output, error) {
		panic("index out of range")
	})
	require.NoError(t, r.Register("fail", desc("fail"), failing))
	require.NoError(t, r.Register("panic", desc("panic"), panicking))
	require.NoError(t, r.ValidateDependencyGraph())

	res := r.Execute(context.Background(), "fail", nil)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrOperatorFailure)
	assert.Contains(t, res.Errors[0], "negative input")

	res = r.Execute(context.Background(), "panic", nil)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, operator.ErrOperatorFailure)
	assert.Contains(t, res.Errors[0], "index out of range")
}

func TestExecuteDependencyUnsatisfied(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("L1", desc("L1"), constant(1, 1)))
	require.NoError(t, r.Register("L2", desc("L2", "L1"), constant(2, 1)))
	require.NoError(t, r.ValidateDependencyGraph())

	ec := operator.NewExecutionContext(nil)
	res := r.Execute(context.Background(), "L2", ec)
	assert.ErrorIs(t, res.Err, operator.ErrDependencyUnsatisfied)

	ec.Append(operator.Result{Success: false, Metadata: operator.ResultMetadata{OperatorID: "L1"}})
	res = r.Execute(context.Background(), "L2", ec)
	assert.ErrorIs(t, res.Err, operator.ErrDependencyUnsatisfied, "a failed dependency does not count")

	ec.Append(r.Execute(context.Background(), "L1", ec))
	res = r.Execute(context.Background(), "L2", ec)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Payload)
}

func TestExecuteConfidence(t *testing.T) {
	r := New()
	full := desc("full")
	full.Stability = 1.0
	half := desc("half")
	half.Stability = 0.5
	require.NoError(t, r.Register("full", full, constant("x", 1.2)))
	require.NoError(t, r.Register("half", half, constant("y", 0.8)))
	require.NoError(t, r.Register("bare", desc("bare"), operator.ExecutableFunc(
		func(context.Context, *operator.ExecutionContext) (operator.Output, error) {
			return operator.Output{Result: "z"}, nil
		})))
	require.NoError(t, r.ValidateDependencyGraph())

	res := r.Execute(context.Background(), "full", nil)
	require.True(t, res.Success)
	assert.Equal(t, 1.0, res.Metadata.Confidence)
	assert.NotEmpty(t, res.Warnings)

	ec := operator.NewExecutionContext(nil, operator.WithState(map[string]any{"consistency": 0.5}))
	res = r.Execute(context.Background(), "half", ec)
	assert.InDelta(t, 0.2, res.Metadata.Confidence, 1e-9)

	res = r.Execute(context.Background(), "bare", nil)
	assert.InDelta(t, 0.9, res.Metadata.Confidence, 1e-9)
}

func TestExecuteConcurrentReaders(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("A", desc("A"), constant("ok", 1)))
	require.NoError(t, r.ValidateDependencyGraph())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Execute(context.Background(), "A", operator.NewExecutionContext(nil))
			assert.True(t, res.Success)
			_ = r.Statistics()
		}()
	}
	wg.Wait()
}

// #endregion
