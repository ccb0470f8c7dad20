package operator

import (
	"context"
	"time"
)

// #region triad

// Triad classifies how an operator reasons about its input.
type Triad string

const (
	TriadProcedural  Triad = "procedural"
	TriadHeuristic   Triad = "heuristic"
	TriadRefactorial Triad = "refactorial"
)

// Triads lists every valid triad in declaration order.
var Triads = []Triad{TriadProcedural, TriadHeuristic, TriadRefactorial}

// Valid reports whether t is one of the fixed triads.
func (t Triad) Valid() bool {
	for _, v := range Triads {
		if t == v {
			return true
		}
	}
	return false
}

// #endregion

// #region category

// Category groups operators by the layer of the system they act on.
type Category string

const (
	CategoryFoundational Category = "foundational"
	CategoryDynamic      Category = "dynamic"
	CategoryRelational   Category = "relational"
	CategoryGovernance   Category = "governance"
)

// Categories lists every valid category in declaration order.
var Categories = []Category{CategoryFoundational, CategoryDynamic, CategoryRelational, CategoryGovernance}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// #endregion

// #region descriptor

// Descriptor is the static metadata an operator is registered with.
type Descriptor struct {
	ID           string   `json:"id" yaml:"id" validate:"required"`
	Symbol       string   `json:"symbol" yaml:"symbol" validate:"required"`
	Triad        Triad    `json:"triad" yaml:"triad" validate:"required,oneof=procedural heuristic refactorial"`
	Category     Category `json:"category" yaml:"category" validate:"required,oneof=foundational dynamic relational governance"`
	Scope        string   `json:"scope" yaml:"scope"`
	Description  string   `json:"description" yaml:"description"`
	Parameters   []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Complexity   int      `json:"complexity" yaml:"complexity" validate:"min=1,max=10"`
	Stability    float64  `json:"stability" yaml:"stability" validate:"gte=0,lte=1"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// #endregion

// #region executable

// Executable is the capability half of an operator. Implementations should
// report domain failure through low confidence; returned errors and panics are
// still recovered by the registry.
type Executable interface {
	Execute(ctx context.Context, ec *ExecutionContext) (Output, error)
}

// ExecutableFunc adapts a plain function to Executable.
type ExecutableFunc func(ctx context.Context, ec *ExecutionContext) (Output, error)

// Execute calls f.
func (f ExecutableFunc) Execute(ctx context.Context, ec *ExecutionContext) (Output, error) {
	return f(ctx, ec)
}

// Output is what an Executable hands back. A nil Confidence means 1.
type Output struct {
	Result     any
	Confidence *float64
	Metadata   map[string]any
}

// NewOutput builds an Output with an explicit confidence.
func NewOutput(result any, confidence float64) Output {
	return Output{Result: result, Confidence: &confidence}
}

// #endregion

// #region entry

// Entry pairs a descriptor with its executable. Entries are immutable once registered.
type Entry struct {
	Descriptor Descriptor
	Executable Executable
}

// #endregion

// #region environment

// Environment carries run-scoped facts shared by every stage.
type Environment struct {
	Timestamp time.Time
	SessionID string
	Scope     []string
}

// #endregion

// #region result

// ResultMetadata is attached to every Result.
type ResultMetadata struct {
	OperatorID  string
	Duration    time.Duration
	MemoryDelta int64 // heap bytes allocated during the call, approximate
	Confidence  float64
}

// Result is the outcome of one operator execution. Treat as immutable.
type Result struct {
	Success  bool
	Payload  any
	Metadata ResultMetadata
	Errors   []string
	Warnings []string

	// Err carries the typed failure for errors.Is checks; nil on success.
	Err error `json:"-"`
}

// Failed builds an unsuccessful Result for id from err.
func Failed(id string, err error) Result {
	return Result{
		Success:  false,
		Metadata: ResultMetadata{OperatorID: id},
		Errors:   []string{err.Error()},
		Err:      err,
	}
}

// #endregion
