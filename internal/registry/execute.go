package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

var tracer = otel.Tracer("evolution-engine.registry")

// #region outcome

type callOutcome struct {
	out operator.Output
	err error
}

// #endregion

// #region execute

// Execute runs the operator registered under id against ec. It never returns
// an error: unknown ids, unmet dependencies, timeouts, returned errors and
// panics all come back as a Result with Success false.
//
// A call that outlives the deadline is abandoned, not stopped. Its context is
// cancelled and whatever it returns later is dropped.
func (r *Registry) Execute(ctx context.Context, id string, ec *operator.ExecutionContext) operator.Result {
	ctx, span := tracer.Start(ctx, "registry.Execute",
		trace.WithAttributes(attribute.String("operator.id", id)))
	defer span.End()

	start := time.Now()
	res := r.execute(ctx, id, ec)
	res.Metadata.OperatorID = id
	res.Metadata.Duration = time.Since(start)

	outcome := "success"
	if !res.Success {
		outcome = kindLabel(res.Err)
		span.SetStatus(codes.Error, res.Errors[0])
	}
	span.SetAttributes(
		attribute.Bool("operator.success", res.Success),
		attribute.Float64("operator.confidence", res.Metadata.Confidence))
	executionsTotal.WithLabelValues(id, outcome).Inc()
	executionDuration.WithLabelValues(id).Observe(res.Metadata.Duration.Seconds())
	return res
}

func (r *Registry) execute(ctx context.Context, id string, ec *operator.ExecutionContext) operator.Result {
	if ec == nil {
		ec = operator.NewExecutionContext(nil)
	}

	r.mu.RLock()
	sealed := r.sealed
	entry, ok := r.entries[id]
	r.mu.RUnlock()

	if !sealed {
		return operator.Failed(id, operator.Errorf(operator.KindValidation, "execute", id,
			"registry has not been validated"))
	}
	if !ok {
		return operator.Failed(id, operator.Errorf(operator.KindNotFound, "execute", id,
			"operator %q is not registered", id))
	}

	for _, dep := range entry.Descriptor.Dependencies {
		if !ec.Succeeded(dep) {
			return operator.Failed(id, operator.Errorf(operator.KindDependencyUnsatisfied, "execute", id,
				"dependency %q has no successful result in this context", dep))
		}
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	out, err := r.call(ctx, id, entry.Executable, ec)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	memDelta := int64(after.TotalAlloc - before.TotalAlloc)

	if err != nil {
		res := operator.Failed(id, err)
		res.Metadata.MemoryDelta = memDelta
		if operator.KindOf(err) == operator.KindExecutionTimeout {
			r.logger.Warn("operator timed out", zap.String("operator", id), zap.Duration("timeout", r.timeout))
		} else {
			r.logger.Warn("operator failed", zap.String("operator", id), zap.Error(err))
		}
		return res
	}

	var warnings []string
	inner := 1.0
	if out.Confidence != nil {
		inner = *out.Confidence
		if inner < 0 || inner > 1 || math.IsNaN(inner) {
			warnings = append(warnings, fmt.Sprintf("operator confidence %v outside [0,1]", inner))
		}
	}
	consistency := ec.Float("consistency", 1)
	confidence := clamp01(entry.Descriptor.Stability * inner * consistency)

	return operator.Result{
		Success: true,
		Payload: out.Result,
		Metadata: operator.ResultMetadata{
			MemoryDelta: memDelta,
			Confidence:  confidence,
		},
		Warnings: warnings,
	}
}

// call runs exec in its own goroutine and races it against the deadline.
func (r *Registry) call(ctx context.Context, id string, exec operator.Executable, ec *operator.ExecutionContext) (operator.Output, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- callOutcome{err: operator.Errorf(operator.KindOperatorFailure, "execute", id, "panic: %v", p)}
			}
		}()
		out, err := exec.Execute(callCtx, ec)
		if err != nil {
			err = operator.Wrap(operator.KindOperatorFailure, "execute", id, err)
		}
		done <- callOutcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return operator.Output{}, operator.Errorf(operator.KindExecutionTimeout, "execute", id,
				"no result within %s", r.timeout)
		}
		return operator.Output{}, operator.Wrap(operator.KindOperatorFailure, "execute", id, ctx.Err())
	}
}

// #endregion

// #region helpers

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func kindLabel(err error) string {
	k := operator.KindOf(err)
	if k == 0 {
		return "failure"
	}
	return k.String()
}

// #endregion
