// Package operators provides the built-in numeric operators that strategies
// and generated pipelines are composed from. Every operator reads a
// map-shaped numeric input and returns a map of the same shape, so any of
// them can follow any other in a pipeline.
package operators

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region ids

// Built-in operator ids.
const (
	IDObserve    = "observe"
	IDAssess     = "assess"
	IDRefine     = "refine"
	IDReduceDebt = "reduce-debt"
	IDSimplify   = "simplify"
	IDAlign      = "align"
	IDStabilize  = "stabilize"
	IDAudit      = "audit"
)

// Config keys operators read from ExecutionContext.Config.
const (
	// ConfigTargets holds a map[string]float64 of per-field goals. Fields
	// without a goal move toward their ideal (0 for debt, 1 otherwise).
	ConfigTargets = "targets"
	// ConfigGain overrides the fraction of the gap closed per call.
	ConfigGain = "gain"
)

// DefaultGain is the fraction of the remaining gap a shaping operator closes.
const DefaultGain = 0.5

// #endregion ids

// #region builtin

// Builtin is one built-in operator.
type Builtin struct {
	Descriptor operator.Descriptor
	Executable operator.Executable
}

// Builtins returns every built-in operator in registration order.
func Builtins() []Builtin {
	return []Builtin{
		{
			Descriptor: operator.Descriptor{
				ID: IDObserve, Symbol: "Ω", Triad: operator.TriadProcedural,
				Category: operator.CategoryFoundational, Scope: "analysis",
				Description: "Snapshot the numeric fields of the input unchanged",
				Complexity:  1, Stability: 1,
			},
			Executable: operator.ExecutableFunc(observe),
		},
		{
			Descriptor: operator.Descriptor{
				ID: IDAssess, Symbol: "Δ", Triad: operator.TriadHeuristic,
				Category: operator.CategoryFoundational, Scope: "analysis",
				Description:  "Score the input: mean of fields with debt inverted",
				Parameters:   []string{"score"},
				Complexity:   2, Stability: 0.95,
				Dependencies: []string{IDObserve},
			},
			Executable: operator.ExecutableFunc(assess),
		},
		{
			Descriptor: shaping(IDRefine, "Ρ", operator.CategoryDynamic, "quality",
				"Move quality and maintainability toward their goals", 4, 0.9),
			Executable: shape(state.FieldQuality, state.FieldMaintainability),
		},
		{
			Descriptor: shaping(IDReduceDebt, "Ψ", operator.CategoryDynamic, "debt",
				"Move debt toward its goal", 5, 0.85),
			Executable: shape(state.FieldDebt),
		},
		{
			Descriptor: shaping(IDSimplify, "Σ", operator.CategoryDynamic, "debt",
				"Move maintainability and debt toward their goals", 3, 0.9),
			Executable: shape(state.FieldMaintainability, state.FieldDebt),
		},
		{
			Descriptor: shaping(IDAlign, "Λ", operator.CategoryRelational, "architecture",
				"Move coherence toward its goal", 4, 0.9),
			Executable: shape(state.FieldCoherence),
		},
		{
			Descriptor: shaping(IDStabilize, "Κ", operator.CategoryRelational, "architecture",
				"Move consistency toward its goal", 3, 0.95),
			Executable: shape(state.FieldConsistency),
		},
		{
			Descriptor: operator.Descriptor{
				ID: IDAudit, Symbol: "Γ", Triad: operator.TriadHeuristic,
				Category: operator.CategoryGovernance, Scope: "governance",
				Description:  "Check every field lies in [0,1]; confidence is the valid fraction",
				Complexity:   2, Stability: 1,
				Dependencies: []string{IDObserve},
			},
			Executable: operator.ExecutableFunc(audit),
		},
	}
}

func shaping(id, symbol string, c operator.Category, scope, description string, complexity int, stability float64) operator.Descriptor {
	return operator.Descriptor{
		ID:           id,
		Symbol:       symbol,
		Triad:        operator.TriadRefactorial,
		Category:     c,
		Scope:        scope,
		Description:  description,
		Parameters:   []string{ConfigTargets, ConfigGain},
		Complexity:   complexity,
		Stability:    stability,
		Dependencies: []string{IDObserve},
	}
}

// #endregion builtin

// #region register

// Registrar is the part of the registry RegisterBuiltins needs.
type Registrar interface {
	Register(id string, desc operator.Descriptor, exec operator.Executable) error
}

// RegisterBuiltins registers every built-in operator.
func RegisterBuiltins(r Registrar) error {
	for _, b := range Builtins() {
		if err := r.Register(b.Descriptor.ID, b.Descriptor, b.Executable); err != nil {
			return fmt.Errorf("register %s: %w", b.Descriptor.ID, err)
		}
	}
	return nil
}

// #endregion register

// #region implementations

func input(ec *operator.ExecutionContext) (map[string]float64, error) {
	fields, ok := operator.Numeric(ec.Input)
	if !ok {
		return nil, fmt.Errorf("input %T carries no numeric fields", ec.Input)
	}
	return fields, nil
}

func observe(_ context.Context, ec *operator.ExecutionContext) (operator.Output, error) {
	fields, err := input(ec)
	if err != nil {
		return operator.Output{}, err
	}
	return operator.NewOutput(fields, 1), nil
}

func assess(_ context.Context, ec *operator.ExecutionContext) (operator.Output, error) {
	fields, err := input(ec)
	if err != nil {
		return operator.Output{}, err
	}
	var sum float64
	var n int
	for name, v := range fields {
		if !state.IsKnownField(name) {
			continue
		}
		if name == state.FieldDebt {
			v = 1 - v
		}
		sum += v
		n++
	}
	out := maps.Clone(fields)
	if n > 0 {
		out["score"] = sum / float64(n)
	}
	return operator.Output{
		Result:   out,
		Metadata: map[string]any{"fields_scored": n},
	}, nil
}

// shape returns an operator that closes a fraction of the gap between each
// named field and its goal. Fields absent from the input are left absent.
func shape(names ...string) operator.Executable {
	return operator.ExecutableFunc(func(_ context.Context, ec *operator.ExecutionContext) (operator.Output, error) {
		fields, err := input(ec)
		if err != nil {
			return operator.Output{}, err
		}
		gain := DefaultGain
		if g, ok := operator.AsFloat(ec.Config[ConfigGain]); ok && g > 0 && g <= 1 {
			gain = g
		}
		targets := goals(ec.Config[ConfigTargets])

		out := maps.Clone(fields)
		var gap float64
		var touched int
		for _, name := range names {
			x, ok := out[name]
			if !ok {
				continue
			}
			goal, ok := targets[name]
			if !ok {
				goal = ideal(name)
			}
			out[name] = state.Clamp01(x + gain*(goal-x))
			gap += math.Abs(goal - x)
			touched++
		}
		if touched == 0 {
			return operator.NewOutput(out, 0.5), nil
		}
		// Larger remaining gaps make the proposal less certain.
		return operator.NewOutput(out, 1-0.5*gap/float64(touched)), nil
	})
}

func audit(_ context.Context, ec *operator.ExecutionContext) (operator.Output, error) {
	fields, err := input(ec)
	if err != nil {
		return operator.Output{}, err
	}
	var valid int
	var invalid []string
	for name, v := range fields {
		if v >= 0 && v <= 1 && !math.IsNaN(v) {
			valid++
		} else {
			invalid = append(invalid, name)
		}
	}
	out := operator.NewOutput(fields, float64(valid)/float64(len(fields)))
	if len(invalid) > 0 {
		out.Metadata = map[string]any{"out_of_range": invalid}
	}
	return out, nil
}

func ideal(name string) float64 {
	if name == state.FieldDebt {
		return 0
	}
	return 1
}

func goals(v any) map[string]float64 {
	if m, ok := operator.Numeric(v); ok {
		return m
	}
	return nil
}

// #endregion implementations
