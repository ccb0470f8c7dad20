package orchestrator

// #region imports
import (
	"context"
	"time"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

// #endregion

// #region request

// SynthesisContext describes where a pipeline runs.
type SynthesisContext struct {
	Domain      string         `json:"domain" validate:"required"`
	Scope       []string       `json:"scope,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// SynthesisMetadata identifies a request.
type SynthesisMetadata struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// SynthesisRequest asks the orchestrator to run Pipeline over Input. A nil
// Input starts the pipeline from {"intent": Intent}.
type SynthesisRequest struct {
	Intent   string            `json:"intent" validate:"required"`
	Context  SynthesisContext  `json:"context"`
	Pipeline []string          `json:"pipeline" validate:"required,min=1,dive,required"`
	Input    any               `json:"input,omitempty"`
	Metadata SynthesisMetadata `json:"metadata"`
}

// #endregion

// #region response

// ResponseMetadata summarizes one pipeline run.
type ResponseMetadata struct {
	SessionID         string        `json:"session_id"`
	ExecutionTime     time.Duration `json:"execution_time"`
	OperatorsExecuted int           `json:"operators_executed"`
	CoherenceScore    float64       `json:"coherence_score"`
	Confidence        float64       `json:"confidence"`
	Warnings          []string      `json:"warnings,omitempty"`
	Errors            []string      `json:"errors,omitempty"`
}

// Response is the outcome of a pipeline run. Stages always has one entry per
// requested operator id, in request order.
type Response struct {
	Success  bool              `json:"success"`
	Result   any               `json:"result"`
	Stages   []operator.Result `json:"stages"`
	Metadata ResponseMetadata  `json:"metadata"`
}

// #endregion

// #region coherence

// CoherenceLevel grades a run's coherence.
type CoherenceLevel string

const (
	CoherenceOptimal    CoherenceLevel = "optimal"
	CoherenceAcceptable CoherenceLevel = "acceptable"
	CoherenceCritical   CoherenceLevel = "critical"
)

// CoherenceReport is the output of MonitorCoherence.
type CoherenceReport struct {
	Level            CoherenceLevel
	Coherence        float64
	Confidence       float64
	FailedFraction   float64
	AdaptationNeeded bool
	Recommendations  []string
}

// #endregion

// #region stage-outcome

// StageOutcome is a single row for stage_outcomes.
type StageOutcome struct {
	SessionID   string
	OperatorID  string
	Position    int
	Success     bool
	Confidence  float64
	Duration    time.Duration
	PayloadJSON string
	Error       string
	CreatedAt   time.Time
}

// Tally counts recorded outcomes for one operator.
type Tally struct {
	Successes int
	Failures  int
}

// Ratio is successes/(successes+failures), 1 when nothing failed.
func (t Tally) Ratio() float64 {
	if t.Failures == 0 {
		return 1
	}
	return float64(t.Successes) / float64(t.Successes+t.Failures)
}

// #endregion

// #region interfaces

// Executor is the registry surface the orchestrator drives.
type Executor interface {
	Execute(ctx context.Context, id string, ec *operator.ExecutionContext) operator.Result
	Get(id string) (operator.Entry, bool)
}

// #endregion
