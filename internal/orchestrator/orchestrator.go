// Package orchestrator sequences operator pipelines through the registry and
// aggregates their confidence into a coherence score.
package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

// #endregion

var (
	tracer          = otel.Tracer("evolution-engine.orchestrator")
	requestValidate = validator.New()
)

// #region orchestrator-struct

// Orchestrator runs pipelines against a registry it does not own.
type Orchestrator struct {
	registry Executor
	memory   *StageMemory
	logger   *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l.Named("orchestrator")
		}
	}
}

// WithMemory records every stage outcome in m.
func WithMemory(m *StageMemory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// #endregion

// #region constructor

// New creates an orchestrator over reg.
func New(reg Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{registry: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Memory returns the stage memory, or nil when none is configured.
func (o *Orchestrator) Memory() *StageMemory {
	return o.memory
}

// #endregion

// #region synthesize

// Synthesize validates req and runs its pipeline. Only validation problems
// are returned as errors; stage failures are reported in the Response.
func (o *Orchestrator) Synthesize(ctx context.Context, req SynthesisRequest) (Response, error) {
	if err := o.Validate(req); err != nil {
		return Response{}, err
	}

	config := maps.Clone(req.Context.Preferences)
	if config == nil {
		config = map[string]any{}
	}
	maps.Copy(config, req.Context.Constraints)

	opts := []operator.ContextOption{operator.WithConfig(config), operator.WithScope(req.Context.Scope...)}
	if req.Metadata.SessionID != "" {
		opts = append(opts, operator.WithSession(req.Metadata.SessionID))
	}
	input := req.Input
	if input == nil {
		input = map[string]any{"intent": req.Intent}
	}
	ec := operator.NewExecutionContext(input, opts...)
	if !req.Metadata.Timestamp.IsZero() {
		ec.Environment.Timestamp = req.Metadata.Timestamp
	}

	resp := o.ExecutePipeline(ctx, req.Pipeline, ec)
	if warnings := o.CheckOrdering(req.Pipeline); len(warnings) > 0 {
		resp.Metadata.Warnings = append(warnings, resp.Metadata.Warnings...)
	}
	return resp, nil
}

// Validate checks req without running it: intent, domain and a non-empty
// pipeline whose ids all resolve.
func (o *Orchestrator) Validate(req SynthesisRequest) error {
	if err := requestValidate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return operator.Errorf(operator.KindValidation, "synthesize", "",
				"field %s failed %q", fe.Namespace(), fe.Tag())
		}
		return operator.Wrap(operator.KindValidation, "synthesize", "", err)
	}
	for _, id := range req.Pipeline {
		if _, ok := o.registry.Get(id); !ok {
			return operator.Errorf(operator.KindValidation, "synthesize", id,
				"pipeline operator %q is not registered", id)
		}
	}
	return nil
}

// #endregion

// #region execute-pipeline

// ExecutePipeline runs ids in order against ec. Every stage sees all results
// so far. A successful stage's payload becomes the next input; after a
// failure the next stage starts from a nil input. The run never stops early.
func (o *Orchestrator) ExecutePipeline(ctx context.Context, ids []string, ec *operator.ExecutionContext) Response {
	if ec == nil {
		ec = operator.NewExecutionContext(nil)
	}
	ctx, span := tracer.Start(ctx, "orchestrator.ExecutePipeline",
		trace.WithAttributes(
			attribute.String("session.id", ec.Environment.SessionID),
			attribute.Int("pipeline.length", len(ids))))
	defer span.End()

	start := time.Now()
	stages := make([]operator.Result, 0, len(ids))
	input := ec.Input

	for pos, id := range ids {
		res := o.registry.Execute(ctx, id, ec.Stage(input))
		ec.Append(res)
		stages = append(stages, res)

		if res.Success {
			input = res.Payload
		} else {
			input = nil
			stageFailures.WithLabelValues(id).Inc()
		}
		o.record(ec.Environment.SessionID, pos, res)
	}

	resp := assemble(stages)
	resp.Metadata.SessionID = ec.Environment.SessionID
	resp.Metadata.ExecutionTime = time.Since(start)

	pipelineRuns.WithLabelValues(fmt.Sprint(resp.Success)).Inc()
	pipelineCoherence.Observe(resp.Metadata.CoherenceScore)
	span.SetAttributes(
		attribute.Bool("pipeline.success", resp.Success),
		attribute.Float64("pipeline.coherence", resp.Metadata.CoherenceScore))
	if !resp.Success {
		span.SetStatus(codes.Error, fmt.Sprintf("%d stage(s) failed", len(resp.Metadata.Errors)))
	}

	o.logger.Debug("pipeline executed",
		zap.String("session", ec.Environment.SessionID),
		zap.Strings("pipeline", ids),
		zap.Bool("success", resp.Success),
		zap.Float64("coherence", resp.Metadata.CoherenceScore),
		zap.Float64("confidence", resp.Metadata.Confidence),
		zap.Duration("elapsed", resp.Metadata.ExecutionTime))
	return resp
}

func (o *Orchestrator) record(session string, pos int, res operator.Result) {
	if o.memory == nil {
		return
	}
	out := StageOutcome{
		SessionID:   session,
		OperatorID:  res.Metadata.OperatorID,
		Position:    pos,
		Success:     res.Success,
		Confidence:  res.Metadata.Confidence,
		Duration:    res.Metadata.Duration,
		PayloadJSON: snapshotPayload(res.Payload),
		CreatedAt:   time.Now().UTC(),
	}
	if len(res.Errors) > 0 {
		out.Error = res.Errors[0]
	}
	if err := o.memory.RecordOutcome(out); err != nil {
		o.logger.Warn("failed to record stage outcome", zap.String("operator", out.OperatorID), zap.Error(err))
	}
}

// #endregion

// #region aggregate

// assemble folds stage results into a Response.
func assemble(stages []operator.Result) Response {
	resp := Response{Success: len(stages) > 0, Stages: stages}
	for _, r := range stages {
		if r.Success {
			resp.Metadata.OperatorsExecuted++
		} else {
			resp.Success = false
			resp.Metadata.Errors = append(resp.Metadata.Errors, r.Errors...)
		}
		resp.Metadata.Warnings = append(resp.Metadata.Warnings, r.Warnings...)
	}
	resp.Metadata.CoherenceScore = Coherence(stages)
	resp.Metadata.Confidence = MeanConfidence(stages)
	resp.Result = aggregateResult(stages)
	return resp
}

// Coherence is the weighted mean of stage confidences with weight 1/(i+1),
// so earlier stages count more. A failed stage contributes 0.
func Coherence(stages []operator.Result) float64 {
	var sum, weights float64
	for i, r := range stages {
		w := 1 / float64(i+1)
		weights += w
		if r.Success {
			sum += w * r.Metadata.Confidence
		}
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// MeanConfidence is the unweighted mean of stage confidences, failures as 0.
func MeanConfidence(stages []operator.Result) float64 {
	if len(stages) == 0 {
		return 0
	}
	var sum float64
	for _, r := range stages {
		if r.Success {
			sum += r.Metadata.Confidence
		}
	}
	return sum / float64(len(stages))
}

// aggregateResult is the payload of the last successful stage, or the first
// stage's payload when none succeeded.
func aggregateResult(stages []operator.Result) any {
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].Success {
			return stages[i].Payload
		}
	}
	if len(stages) > 0 {
		return stages[0].Payload
	}
	return nil
}

// #endregion
