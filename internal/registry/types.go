package registry

import (
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

// #region constants

// DefaultTimeout bounds a single operator call when no option overrides it.
const DefaultTimeout = 30 * time.Second

// #endregion

// #region statistics

// Statistics summarizes the registered operators.
type Statistics struct {
	Total          int
	ByCategory     map[operator.Category]int
	ByTriad        map[operator.Triad]int
	ByScope        map[string]int
	MeanComplexity float64
	MeanStability  float64
}

// #endregion

// #region options

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout sets the per-operator execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l.Named("registry")
		}
	}
}

// #endregion
