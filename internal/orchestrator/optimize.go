package orchestrator

// #region imports
import (
	"slices"
)

// #endregion

// #region optimize

// OptimizePipeline stable-sorts ids by descending success ratio aggregated
// from history. Ids with no recorded failure rank at 1.
func (o *Orchestrator) OptimizePipeline(ids []string, history []Response) []string {
	tallies := make(map[string]Tally)
	for _, resp := range history {
		for _, r := range resp.Stages {
			t := tallies[r.Metadata.OperatorID]
			if r.Success {
				t.Successes++
			} else {
				t.Failures++
			}
			tallies[r.Metadata.OperatorID] = t
		}
	}
	return rank(ids, tallies)
}

// OptimizeFromMemory is OptimizePipeline over the outcomes in stage memory.
// Without memory ids are returned unchanged.
func (o *Orchestrator) OptimizeFromMemory(ids []string) ([]string, error) {
	if o.memory == nil {
		return slices.Clone(ids), nil
	}
	tallies, err := o.memory.Tallies(ids)
	if err != nil {
		return nil, err
	}
	return rank(ids, tallies), nil
}

func rank(ids []string, tallies map[string]Tally) []string {
	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(a, b string) int {
		ra, rb := tallies[a].Ratio(), tallies[b].Ratio()
		switch {
		case ra > rb:
			return -1
		case ra < rb:
			return 1
		default:
			return 0
		}
	})
	return out
}

// #endregion
