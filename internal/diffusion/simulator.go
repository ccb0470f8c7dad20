// Package diffusion simulates a mean-reverting (Ornstein–Uhlenbeck) process
// and retunes its own parameters from observed trajectories.
//
// A Simulator is safe for concurrent use; every call that touches the random
// source or the parameters holds its lock.
package diffusion

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region simulator-struct

// Simulator owns one parameter set and one random source.
type Simulator struct {
	mu        sync.Mutex
	params    Parameters
	bounds    Bounds
	tolerance float64
	gauss     *gaussian
	logger    *zap.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSeed makes the noise sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.gauss = newGaussian(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithSource injects the uniform source feeding Box–Muller.
func WithSource(src rand.Source) Option {
	return func(s *Simulator) {
		if src != nil {
			s.gauss = newGaussian(src)
		}
	}
}

// WithBounds sets the κ/σ clamps used by OptimizeParameters.
func WithBounds(b Bounds) Option {
	return func(s *Simulator) { s.bounds = b }
}

// WithTolerance sets the convergence tolerance.
func WithTolerance(tol float64) Option {
	return func(s *Simulator) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l.Named("diffusion")
		}
	}
}

// New validates p and returns a simulator. Without WithSeed or WithSource the
// noise is seeded from the clock.
func New(p Parameters, opts ...Option) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	seed := uint64(time.Now().UnixNano())
	s := &Simulator{
		params:    p,
		bounds:    DefaultBounds(),
		tolerance: DefaultTolerance,
		gauss:     newGaussian(rand.NewPCG(seed, seed>>1)),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// #endregion

// #region parameters

// Parameters returns a copy of the current parameters.
func (s *Simulator) Parameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParameters validates and replaces the parameters.
func (s *Simulator) SetParameters(p Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// Bounds returns the configured parameter bounds.
func (s *Simulator) Bounds() Bounds {
	return s.bounds
}

// Tolerance returns the convergence tolerance.
func (s *Simulator) Tolerance() float64 {
	return s.tolerance
}

// #endregion

// #region step

// Step advances x by one Euler–Maruyama step under the current parameters:
// next = clamp01(x + κ(θ−x)dt + σΔW).
func (s *Simulator) Step(x float64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(s.params, x)
}

// StepToward is Step with θ replaced by theta, for driving several fields
// with one κ/σ.
func (s *Simulator) StepToward(x, theta float64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.params
	p.Theta = theta
	return s.stepLocked(p, x)
}

func (s *Simulator) stepLocked(p Parameters, x float64) State {
	deviation := p.Theta - x
	drift := p.Kappa * deviation * p.Dt
	diffusion := p.Sigma * s.gauss.wiener(p.Dt)
	return State{
		Value:          clamp01(x + drift + diffusion),
		Drift:          drift,
		Diffusion:      diffusion,
		Deviation:      math.Abs(deviation),
		RestoringForce: p.Kappa * math.Abs(deviation),
	}
}

// Perturb returns symmetric uniform noise in [-amplitude, amplitude) from the
// simulator's source, so a seeded simulator makes a whole run reproducible.
func (s *Simulator) Perturb(amplitude float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gauss.uniform(amplitude)
}

// #endregion

// #region evolve

// Evolve simulates n steps from the configured initial value. The trajectory
// holds n+1 states, the first being the initial value itself.
func (s *Simulator) Evolve(n int) Trajectory {
	return s.EvolveFrom(s.Parameters().Initial, n)
}

// EvolveFrom simulates n steps starting at x0.
func (s *Simulator) EvolveFrom(x0 float64, n int) Trajectory {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.params
	states := make([]State, 0, n+1)
	states = append(states, State{
		Step:      0,
		Value:     x0,
		Deviation: math.Abs(p.Theta - x0),
	})

	x := x0
	for i := 1; i <= n; i++ {
		st := s.stepLocked(p, x)
		st.Step = i
		st.Time = float64(i) * p.Dt
		states = append(states, st)
		x = st.Value
	}

	return Trajectory{
		States:     states,
		Theta:      p.Theta,
		TotalTime:  float64(n) * p.Dt,
		FinalValue: x,
		Converged:  math.Abs(x-p.Theta) <= s.tolerance,
		NetDelta:   x - x0,
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

// #endregion
