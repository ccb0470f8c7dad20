package update

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region fold-function

// Fold is a pure function that moves old toward each numeric operator output
// in turn. For every field the vector already tracks, an output carrying
// that field pulls it by Damping·(out−cur). Keys the vector does not track
// are ignored. The result is clamped to [0,1].
func Fold(old state.Vector, outputs []map[string]float64, cfg Config) UpdateResult {
	start := time.Now()

	next := old.Clone()
	if next.Fields == nil {
		next.Fields = map[string]float64{}
	}
	samples := map[string]int{}

	if cfg.Damping > 0 {
		for _, out := range outputs {
			for name, target := range out {
				cur, ok := next.Fields[name]
				if !ok || math.IsNaN(target) || math.IsInf(target, 0) {
					continue
				}
				next.Fields[name] = cur + cfg.Damping*(target-cur)
				samples[name]++
			}
		}
	}

	delta := next.Delta(old)
	norm := state.Norm(delta)

	// Scale the combined step back onto the L2 cap.
	clipped := false
	if cfg.MaxDeltaNorm > 0 && norm > cfg.MaxDeltaNorm {
		scale := cfg.MaxDeltaNorm / norm
		for name, d := range delta {
			next.Fields[name] = old.Fields[name] + d*scale
		}
		clipped = true
	}
	next.Clamp()
	next.Timestamp = time.Now().UTC()

	delta = next.Delta(old)
	norm = state.Norm(delta)

	fieldsHit := []string{}
	fieldMetrics := make([]FieldMetric, 0, len(next.Fields))
	for _, name := range next.Names() {
		if samples[name] > 0 {
			fieldsHit = append(fieldsHit, name)
		}
		fieldMetrics = append(fieldMetrics, FieldMetric{
			Name:    name,
			Delta:   delta[name],
			Samples: samples[name],
		})
	}

	decision := Decision{Action: "no_op", Reason: "no state change"}
	if norm > 0 {
		decision = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("fields hit: %v, delta norm: %.6f", fieldsHit, norm),
		}
	}

	return UpdateResult{
		NewState: next,
		Decision: decision,
		Metrics: Metrics{
			DeltaNorm:    norm,
			FieldsHit:    fieldsHit,
			FieldMetrics: fieldMetrics,
			Clipped:      clipped,
			UpdateTimeMs: time.Since(start).Milliseconds(),
		},
	}
}

// #endregion fold-function
