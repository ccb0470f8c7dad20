package orchestrator

// #region imports
import "fmt"

// #endregion

// #region thresholds

const (
	criticalCoherence   = 0.5
	acceptableCoherence = 0.7
	minConfidence       = 0.6
	maxFailedFraction   = 0.3
)

// #endregion

// #region monitor

// MonitorCoherence grades resp: coherence below 0.5 is critical, below 0.7
// acceptable, otherwise optimal. Adaptation is flagged when confidence is
// below 0.6 or more than 30% of stages failed.
func (o *Orchestrator) MonitorCoherence(resp Response) CoherenceReport {
	rep := CoherenceReport{
		Coherence:  resp.Metadata.CoherenceScore,
		Confidence: resp.Metadata.Confidence,
	}

	failed := 0
	for _, r := range resp.Stages {
		if !r.Success {
			failed++
		}
	}
	if len(resp.Stages) > 0 {
		rep.FailedFraction = float64(failed) / float64(len(resp.Stages))
	}

	switch {
	case rep.Coherence < criticalCoherence:
		rep.Level = CoherenceCritical
	case rep.Coherence < acceptableCoherence:
		rep.Level = CoherenceAcceptable
	default:
		rep.Level = CoherenceOptimal
	}

	rep.AdaptationNeeded = rep.Confidence < minConfidence || rep.FailedFraction > maxFailedFraction
	rep.Recommendations = recommend(rep, resp)
	return rep
}

// #endregion

// #region recommend

func recommend(rep CoherenceReport, resp Response) []string {
	var recs []string
	if rep.FailedFraction > maxFailedFraction {
		recs = append(recs, fmt.Sprintf("%.0f%% of stages failed; reorder with OptimizePipeline or drop failing operators", rep.FailedFraction*100))
	}
	for _, r := range resp.Stages {
		if !r.Success {
			recs = append(recs, fmt.Sprintf("investigate failing operator %q", r.Metadata.OperatorID))
		}
	}
	if rep.Confidence < minConfidence {
		recs = append(recs, "confidence is low; raise the consistency field or prefer more stable operators")
	}
	if rep.Level == CoherenceCritical && len(resp.Stages) > 0 && !resp.Stages[0].Success {
		recs = append(recs, "the first stage failed and carries the largest coherence weight")
	}
	return recs
}

// #endregion
