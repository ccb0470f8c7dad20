// Package evolution drives a state vector toward a strategy's targets by
// alternating operator pipelines with mean-reverting diffusion steps.
package evolution

// #region imports
import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/diffusion"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operators"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/update"
)

// #endregion

var tracer = otel.Tracer("evolution-engine.evolution")

// PipelineRunner executes one pipeline. *orchestrator.Orchestrator satisfies it.
type PipelineRunner interface {
	ExecutePipeline(ctx context.Context, ids []string, ec *operator.ExecutionContext) orchestrator.Response
}

// #region controller-struct

// Controller owns a simulator, a strategy catalog and a bounded run history.
// Runs are serialized because each one retunes the shared simulator.
type Controller struct {
	runner     PipelineRunner
	cfg        config.Config
	strategies map[string]Strategy
	catalog    []Strategy
	resolves   func(id string) bool
	store      *state.Store
	sim        *diffusion.Simulator
	simOpts    []diffusion.Option
	logger     *zap.Logger

	runMu   sync.Mutex
	history *ring
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig replaces config.Default().
func WithConfig(cfg config.Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithStrategies replaces the embedded catalog.
func WithStrategies(s []Strategy) Option {
	return func(c *Controller) { c.catalog = s }
}

// WithStore commits each run's final state and a provenance row to st.
func WithStore(st *state.Store) Option {
	return func(c *Controller) { c.store = st }
}

// WithResolver checks every strategy pipeline id at construction.
func WithResolver(has func(id string) bool) Option {
	return func(c *Controller) { c.resolves = has }
}

// WithSimulatorOptions passes extra options (seed, source) to the simulator.
func WithSimulatorOptions(opts ...diffusion.Option) Option {
	return func(c *Controller) { c.simOpts = append(c.simOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l.Named("evolution")
		}
	}
}

// #endregion

// #region constructor

// New builds a controller. The catalog is validated, and resolved against the
// registry when WithResolver is given.
func New(runner PipelineRunner, opts ...Option) (*Controller, error) {
	if runner == nil {
		return nil, operator.Errorf(operator.KindValidation, "evolution", "", "pipeline runner is required")
	}
	c := &Controller{
		runner: runner,
		cfg:    config.Default(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog == nil {
		c.catalog = DefaultStrategies()
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, operator.Wrap(operator.KindValidation, "evolution", "", err)
	}

	c.strategies = make(map[string]Strategy, len(c.catalog))
	for _, s := range c.catalog {
		if err := ValidateStrategy(s); err != nil {
			return nil, err
		}
		if _, dup := c.strategies[s.Name]; dup {
			return nil, operator.Errorf(operator.KindValidation, "evolution", s.Name, "duplicate strategy")
		}
		if c.resolves != nil {
			for _, id := range s.Pipeline {
				if !c.resolves(id) {
					return nil, operator.Errorf(operator.KindValidation, "evolution", s.Name,
						"pipeline operator %q is not registered", id)
				}
			}
		}
		c.strategies[s.Name] = s
	}

	ev := c.cfg.Evolution
	simOpts := append([]diffusion.Option{
		diffusion.WithBounds(c.bounds()),
		diffusion.WithTolerance(c.cfg.Diffusion.Tolerance),
		diffusion.WithLogger(c.logger),
	}, c.simOpts...)
	sim, err := diffusion.New(diffusion.Parameters{
		Kappa:   ev.BaseKappa,
		Theta:   0.5,
		Sigma:   ev.BaseSigma,
		Dt:      ev.Dt,
		Initial: 0.5,
	}, simOpts...)
	if err != nil {
		return nil, err
	}
	c.sim = sim
	c.history = newRing(ev.HistorySize)

	if c.store != nil {
		if err := logging.EnsureSchema(c.store.DB()); err != nil {
			return nil, fmt.Errorf("provenance schema: %w", err)
		}
	}

	c.logger.Info("evolution controller ready",
		zap.Int("strategies", len(c.strategies)),
		zap.Bool("persistent", c.store != nil))
	return c, nil
}

func (c *Controller) bounds() diffusion.Bounds {
	d := c.cfg.Diffusion
	return diffusion.Bounds{KappaMin: d.KappaMin, KappaMax: d.KappaMax, SigmaMin: d.SigmaMin, SigmaMax: d.SigmaMax}
}

// #endregion

// #region catalog

// Strategies returns the catalog sorted by name.
func (c *Controller) Strategies() []Strategy {
	out := slices.Collect(maps.Values(c.strategies))
	slices.SortFunc(out, func(a, b Strategy) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Strategy looks up a strategy by name.
func (c *Controller) Strategy(name string) (Strategy, error) {
	s, ok := c.strategies[name]
	if !ok {
		return Strategy{}, operator.Errorf(operator.KindStrategyNotFound, "evolution", name, "no strategy named %q", name)
	}
	return s, nil
}

// Simulator exposes the controller's diffusion simulator.
func (c *Controller) Simulator() *diffusion.Simulator {
	return c.sim
}

// #endregion

// #region run-strategy

// RunStrategy evolves initial under the named strategy for at most
// maxIterations (the strategy's own cap when maxIterations <= 0). Missing
// target fields start at 0.5. Not converging is a normal outcome reported in
// Result.Converged. The only errors are an unknown strategy, a cancelled
// context (returned with the partial result) and store failures.
func (c *Controller) RunStrategy(ctx context.Context, initial state.Vector, name string, maxIterations int) (Result, error) {
	s, err := c.Strategy(name)
	if err != nil {
		return Result{}, err
	}
	return c.run(ctx, initial, s, maxIterations)
}

func (c *Controller) run(ctx context.Context, initial state.Vector, s Strategy, maxIterations int) (Result, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	limit := s.MaxIterations
	if maxIterations > 0 {
		limit = maxIterations
	}
	runID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "evolution.RunStrategy",
		trace.WithAttributes(
			attribute.String("strategy", s.Name),
			attribute.String("run.id", runID),
			attribute.Int("max_iterations", limit)))
	defer span.End()

	start := time.Now()
	ev := c.cfg.Evolution
	cur := withTargets(initial, s)
	res := Result{
		RunID:             runID,
		Strategy:          s.Name,
		Initial:           cur.Clone(),
		StrategiesApplied: []string{s.Name},
	}

	params := c.deriveParameters(cur, s)
	if err := c.sim.SetParameters(params); err != nil {
		return Result{}, err
	}

	primary := cur.Fields[s.Primary]
	traj := diffusion.Trajectory{
		Theta:  params.Theta,
		States: []diffusion.State{{Value: primary, Deviation: math.Abs(params.Theta - primary)}},
	}

	var runErr error
	converged := s.Converged(cur)
	iterations := 0

	for i := 1; i <= limit && !converged; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		ec := operator.NewExecutionContext(maps.Clone(cur.Fields),
			operator.WithConfig(map[string]any{operators.ConfigTargets: maps.Clone(s.Target)}),
			operator.WithState(asAny(cur.Fields)),
			operator.WithSession(runID),
			operator.WithScope(s.Name))
		resp := c.runner.ExecutePipeline(ctx, s.Pipeline, ec)

		var outputs []map[string]float64
		for _, st := range resp.Stages {
			if !st.Success {
				res.FailedStages++
				continue
			}
			if out, ok := operator.Numeric(st.Payload); ok {
				outputs = append(outputs, out)
			}
		}

		next := update.Fold(cur, outputs, update.Config{Damping: ev.Damping}).NewState
		for _, name := range next.Names() {
			next.Fields[name] += c.sim.Perturb(ev.NoiseAmplitude)
		}
		next.Clamp()

		var step diffusion.State
		for _, field := range sortedKeys(s.Target) {
			st := c.sim.StepToward(next.Fields[field], s.Target[field])
			next.Fields[field] = st.Value
			if field == s.Primary {
				step = st
			}
		}
		next.Timestamp = time.Now().UTC()

		step.Step = i
		step.Time = float64(i) * ev.Dt
		traj.States = append(traj.States, step)

		cur = next
		iterations = i
		converged = s.Converged(cur)

		if !converged && i%ev.RetuneEvery == 0 && i < limit {
			c.retune(cur.Fields[s.Primary], float64(limit-i)*ev.Dt)
			res.Retunes++
		}
	}

	final := c.sim.Parameters()
	traj.TotalTime = float64(iterations) * ev.Dt
	traj.FinalValue = cur.Fields[s.Primary]
	traj.NetDelta = traj.FinalValue - primary
	traj.Converged = converged

	res.Final = cur
	res.Trajectory = traj
	res.Iterations = iterations
	res.Converged = converged
	res.Deltas = cur.Delta(res.Initial)
	res.Parameters = final
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("iterations", iterations),
		attribute.Bool("converged", converged))

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		c.logger.Warn("run interrupted",
			zap.String("run", runID),
			zap.String("strategy", s.Name),
			zap.Int("iterations", iterations),
			zap.Error(runErr))
		return res, runErr
	}

	if c.store != nil {
		if err := c.persist(&res, "run"); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
	}

	c.history.push(res)
	runsTotal.WithLabelValues(s.Name, strconv.FormatBool(converged)).Inc()
	runIterations.Observe(float64(iterations))

	c.logger.Info("run finished",
		zap.String("run", runID),
		zap.String("strategy", s.Name),
		zap.Int("iterations", iterations),
		zap.Bool("converged", converged),
		zap.Int("failed_stages", res.FailedStages),
		zap.Int("retunes", res.Retunes),
		zap.Float64("kappa", final.Kappa),
		zap.Float64("sigma", final.Sigma),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// #endregion

// #region parameters

// deriveParameters maps a state onto diffusion parameters:
//
//	κ = base κ · (1 + quality deficit + debt excess)
//	σ = base σ · (1 − quality)
//	θ = target of the primary field
//
// κ and σ are then clamped to the configured bounds.
func (c *Controller) deriveParameters(v state.Vector, s Strategy) diffusion.Parameters {
	ev := c.cfg.Evolution
	quality := v.Value(state.FieldQuality, 0.5)
	debt := v.Value(state.FieldDebt, 0)
	targetQuality, ok := s.Target[state.FieldQuality]
	if !ok {
		targetQuality = 1
	}

	p := diffusion.Parameters{
		Kappa:   ev.BaseKappa * (1 + math.Max(0, targetQuality-quality) + math.Max(0, debt-ev.DebtCeiling)),
		Theta:   s.Target[s.Primary],
		Sigma:   ev.BaseSigma * (1 - quality),
		Dt:      ev.Dt,
		Initial: v.Value(s.Primary, 0.5),
	}
	return c.bounds().Apply(p)
}

// retune re-simulates a short horizon from the primary field and lets the
// simulator adjust κ and σ toward the remaining time budget.
func (c *Controller) retune(primary, remaining float64) {
	traj := c.sim.EvolveFrom(primary, c.cfg.Evolution.RetuneHorizon)
	opt, err := c.sim.OptimizeParameters(traj, remaining)
	if err != nil {
		c.logger.Warn("retune rejected", zap.Error(err))
		return
	}
	retunesTotal.Inc()
	c.logger.Debug("retuned",
		zap.Float64("kappa", opt.Next.Kappa),
		zap.Float64("sigma", opt.Next.Sigma),
		zap.Bool("kappa_adjusted", opt.KappaAdjusted),
		zap.Bool("sigma_adjusted", opt.SigmaAdjusted))
}

// #endregion

// #region persist

// persist commits res.Final as a new state version and logs the decision.
func (c *Controller) persist(res *Result, trigger string) error {
	parent, err := c.store.GetCurrent()
	if err != nil {
		parent, err = c.store.CreateInitialState(res.Initial, "initial")
		if err != nil {
			return fmt.Errorf("create initial state: %w", err)
		}
	}

	rec := logging.RunRecord{
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
	}
	snapshot, err := logging.Snapshot(rec)
	if err != nil {
		return err
	}

	version := state.StateRecord{
		VersionID:   uuid.New().String(),
		ParentID:    parent.VersionID,
		Vector:      res.Final.Clone(),
		Source:      res.Strategy,
		CreatedAt:   time.Now().UTC(),
		MetricsJSON: snapshot,
	}
	if err := c.store.CommitState(version); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	res.VersionID = version.VersionID

	decision, reason := "exhausted", fmt.Sprintf("cap reached after %d iterations", res.Iterations)
	if res.Converged {
		decision, reason = "converged", fmt.Sprintf("thresholds met after %d iterations", res.Iterations)
	}
	return logging.LogDecision(c.store.DB(), logging.ProvenanceEntry{
		RunID:        res.RunID,
		VersionID:    version.VersionID,
		Strategy:     res.Strategy,
		TriggerType:  trigger,
		SnapshotJSON: snapshot,
		Decision:     decision,
		Reason:       reason,
		CreatedAt:    version.CreatedAt,
	})
}

// #endregion

// #region helpers

// withTargets returns a clamped copy of v with every missing target field
// set to 0.5.
func withTargets(v state.Vector, s Strategy) state.Vector {
	out := v.Clone()
	if out.Fields == nil {
		out.Fields = map[string]float64{}
	}
	for field := range s.Target {
		if _, ok := out.Fields[field]; !ok {
			out.Fields[field] = 0.5
		}
	}
	out.Clamp()
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return out
}

func asAny(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	return slices.Sorted(maps.Keys(m))
}

// #endregion
