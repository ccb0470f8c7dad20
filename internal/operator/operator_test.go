package operator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := Errorf(KindNotFound, "execute", "L9", "operator is not registered")
	wrapped := fmt.Errorf("pipeline stage 2: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrValidation)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, err.Error(), "[L9]")
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindOperatorFailure, "execute", "L3", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrOperatorFailure)
	assert.Equal(t, "execute: operator failure [L3]: boom", err.Error())
}

func TestErrorGRPCStatus(t *testing.T) {
	cases := map[Kind]codes.Code{
		KindValidation:            codes.InvalidArgument,
		KindParameter:             codes.InvalidArgument,
		KindNotFound:              codes.NotFound,
		KindStrategyNotFound:      codes.NotFound,
		KindCyclicDependency:      codes.FailedPrecondition,
		KindUnresolvedDependency:  codes.FailedPrecondition,
		KindDependencyUnsatisfied: codes.FailedPrecondition,
		KindExecutionTimeout:      codes.DeadlineExceeded,
		KindOperatorFailure:       codes.Internal,
	}
	for kind, want := range cases {
		err := Errorf(kind, "op", "", "x")
		assert.Equal(t, want, status.Code(err), kind.String())
	}
}

func TestValidEnums(t *testing.T) {
	assert.True(t, TriadHeuristic.Valid())
	assert.False(t, Triad("intuitive").Valid())
	assert.True(t, CategoryGovernance.Valid())
	assert.False(t, Category("cosmic").Valid())
}

func TestStageClipsPreviousResults(t *testing.T) {
	ec := NewExecutionContext(map[string]any{"value": 5})
	require.NotEmpty(t, ec.Environment.SessionID)

	ec.Append(Result{Success: true, Metadata: ResultMetadata{OperatorID: "L1"}})
	stage := ec.Stage("next")
	stage.PreviousResults = append(stage.PreviousResults, Result{Metadata: ResultMetadata{OperatorID: "rogue"}})

	assert.Len(t, ec.PreviousResults, 1)
	assert.Equal(t, "next", stage.Input)
	assert.True(t, ec.Succeeded("L1"))
	assert.False(t, ec.Succeeded("rogue"))

	stage.State["consistency"] = 0.4
	assert.InDelta(t, 0.4, ec.Float("consistency", 1), 1e-12)
}

func TestNumeric(t *testing.T) {
	got, ok := Numeric(map[string]any{"quality": 0.5, "label": "x", "count": 3})
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"quality": 0.5, "count": 3}, got)

	_, ok = Numeric("scalar")
	assert.False(t, ok)
	_, ok = Numeric(map[string]any{"label": "x"})
	assert.False(t, ok)
}
