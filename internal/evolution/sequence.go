package evolution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region run-sequence

// RunStrategySequence runs names in order, feeding each final state into the
// next run. The runs share totalCap iterations; a strategy gets the smaller
// of its own cap and what is left, and the sequence stops once the budget is
// spent. totalCap <= 0 means the sum of the strategies' caps. Every name is
// resolved before anything runs.
//
// The combined result is converged only when every strategy ran and
// converged. Per-strategy results, trajectories included, are in Runs.
func (c *Controller) RunStrategySequence(ctx context.Context, initial state.Vector, names []string, totalCap int) (Result, error) {
	if len(names) == 0 {
		return Result{}, operator.Errorf(operator.KindValidation, "evolution", "", "strategy sequence is empty")
	}
	seq := make([]Strategy, 0, len(names))
	budget := 0
	for _, name := range names {
		s, err := c.Strategy(name)
		if err != nil {
			return Result{}, err
		}
		seq = append(seq, s)
		budget += s.MaxIterations
	}
	if totalCap > 0 {
		budget = totalCap
	}

	start := time.Now()
	filled := initial
	for _, s := range seq {
		filled = withTargets(filled, s)
	}
	combined := Result{
		RunID:     uuid.New().String(),
		Strategy:  strings.Join(names, ","),
		Initial:   filled,
		Converged: true,
	}

	cur := initial
	used := 0
	for _, s := range seq {
		remaining := budget - used
		if remaining <= 0 {
			combined.Converged = false
			break
		}
		res, err := c.run(ctx, cur, s, min(s.MaxIterations, remaining))
		combined.Runs = append(combined.Runs, res)
		if err != nil {
			return combined, err
		}

		used += res.Iterations
		cur = res.Final
		combined.StrategiesApplied = append(combined.StrategiesApplied, s.Name)
		combined.FailedStages += res.FailedStages
		combined.Retunes += res.Retunes
		combined.Parameters = res.Parameters
		combined.VersionID = res.VersionID
		combined.Converged = combined.Converged && res.Converged
	}

	combined.Final = cur
	combined.Iterations = used
	combined.Deltas = cur.Delta(combined.Initial)
	combined.Duration = time.Since(start)

	if c.store != nil {
		if err := c.logSequence(combined); err != nil {
			return combined, err
		}
	}

	c.logger.Info("sequence finished",
		zap.String("run", combined.RunID),
		zap.Strings("strategies", combined.StrategiesApplied),
		zap.Int("iterations", used),
		zap.Int("budget", budget),
		zap.Bool("converged", combined.Converged))
	return combined, nil
}

// logSequence writes one provenance row pointing at the last run's version.
func (c *Controller) logSequence(res Result) error {
	snapshot, err := logging.Snapshot(logging.RunRecord{
		RunID:        res.RunID,
		Strategy:     res.Strategy,
		Iterations:   res.Iterations,
		Converged:    res.Converged,
		Initial:      res.Initial.Fields,
		Final:        res.Final.Fields,
		Deltas:       res.Deltas,
		Kappa:        res.Parameters.Kappa,
		Sigma:        res.Parameters.Sigma,
		Theta:        res.Parameters.Theta,
		FailedStages: res.FailedStages,
		Retunes:      res.Retunes,
	})
	if err != nil {
		return err
	}
	decision := "exhausted"
	if res.Converged {
		decision = "converged"
	}
	return logging.LogDecision(c.store.DB(), logging.ProvenanceEntry{
		RunID:        res.RunID,
		VersionID:    res.VersionID,
		Strategy:     res.Strategy,
		TriggerType:  "sequence",
		SnapshotJSON: snapshot,
		Decision:     decision,
		Reason:       fmt.Sprintf("%d strategies applied in %d iterations", len(res.StrategiesApplied), res.Iterations),
		CreatedAt:    time.Now().UTC(),
	})
}

// #endregion
