package orchestrator

// #region imports
import (
	"context"

	"golang.org/x/sync/errgroup"
)

// #endregion

// #region batch

// SynthesizeBatch runs independent requests concurrently, at most limit at a
// time (limit <= 0 means unbounded). responses[i] answers reqs[i]; a request
// that fails validation leaves a zero Response and the first such error is
// returned after every request has finished.
func (o *Orchestrator) SynthesizeBatch(ctx context.Context, reqs []SynthesisRequest, limit int) ([]Response, error) {
	responses := make([]Response, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := o.Synthesize(ctx, req)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	err := g.Wait()
	return responses, err
}

// #endregion
