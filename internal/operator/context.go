package operator

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// #region execution-context

// ExecutionContext is built once per pipeline run. Config, State and
// Environment are shared by every stage; PreviousResults only grows.
type ExecutionContext struct {
	Input           any
	Config          map[string]any
	State           map[string]any
	PreviousResults []Result
	Environment     Environment
}

// ContextOption customizes NewExecutionContext.
type ContextOption func(*ExecutionContext)

// WithConfig sets the run config map.
func WithConfig(cfg map[string]any) ContextOption {
	return func(ec *ExecutionContext) { ec.Config = cfg }
}

// WithState sets the initial mutable state map.
func WithState(state map[string]any) ContextOption {
	return func(ec *ExecutionContext) { ec.State = state }
}

// WithSession sets the session id.
func WithSession(id string) ContextOption {
	return func(ec *ExecutionContext) { ec.Environment.SessionID = id }
}

// WithScope sets the environment scope tags.
func WithScope(tags ...string) ContextOption {
	return func(ec *ExecutionContext) { ec.Environment.Scope = tags }
}

// NewExecutionContext creates a context for one run. A session id is
// generated when none is given.
func NewExecutionContext(input any, opts ...ContextOption) *ExecutionContext {
	ec := &ExecutionContext{
		Input:  input,
		Config: map[string]any{},
		State:  map[string]any{},
		Environment: Environment{
			Timestamp: time.Now().UTC(),
		},
	}
	for _, opt := range opts {
		opt(ec)
	}
	if ec.Config == nil {
		ec.Config = map[string]any{}
	}
	if ec.State == nil {
		ec.State = map[string]any{}
	}
	if ec.Environment.SessionID == "" {
		ec.Environment.SessionID = uuid.New().String()
	}
	return ec
}

// #endregion

// #region stage

// Stage returns the view handed to a single stage: same Config, State and
// Environment, the given input, and a capacity-clipped copy of the results so
// far so a stage (or a timed-out call still running) cannot append into the
// run's list.
func (ec *ExecutionContext) Stage(input any) *ExecutionContext {
	return &ExecutionContext{
		Input:           input,
		Config:          ec.Config,
		State:           ec.State,
		PreviousResults: slices.Clip(slices.Clone(ec.PreviousResults)),
		Environment:     ec.Environment,
	}
}

// Append records a stage result on the run.
func (ec *ExecutionContext) Append(r Result) {
	ec.PreviousResults = append(ec.PreviousResults, r)
}

// Succeeded reports whether a successful result for id is already present.
func (ec *ExecutionContext) Succeeded(id string) bool {
	for _, r := range ec.PreviousResults {
		if r.Success && r.Metadata.OperatorID == id {
			return true
		}
	}
	return false
}

// Float reads a numeric value from State, falling back to def when missing
// or not numeric.
func (ec *ExecutionContext) Float(key string, def float64) float64 {
	if v, ok := AsFloat(ec.State[key]); ok {
		return v
	}
	return def
}

// #endregion

// #region numeric

// AsFloat converts the common numeric kinds to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Numeric extracts the numeric fields of a map-shaped payload. Non-numeric
// entries are skipped; ok is false when nothing numeric was found.
func Numeric(payload any) (map[string]float64, bool) {
	out := map[string]float64{}
	switch p := payload.(type) {
	case map[string]float64:
		for k, v := range p {
			out[k] = v
		}
	case map[string]any:
		for k, v := range p {
			if f, ok := AsFloat(v); ok {
				out[k] = f
			}
		}
	default:
		return nil, false
	}
	return out, len(out) > 0
}

// #endregion
