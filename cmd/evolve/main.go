package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/diffusion"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/evolution"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region main

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config (defaults when empty)")
	strategy := flag.String("strategy", "quality-improvement", "strategy to run")
	sequence := flag.String("sequence", "", "comma-separated strategies to chain instead of -strategy")
	maxIter := flag.Int("max", 0, "iteration cap (strategy cap, or sum of caps for a sequence, when 0)")
	predict := flag.Int("predict", 0, "predict N iterations in closed form instead of running")
	seed := flag.Uint64("seed", 0, "seed the diffusion noise (unseeded when 0)")
	fields := flag.String("state", "", "initial fields, e.g. quality=0.3,debt=0.6")
	list := flag.Bool("list", false, "list strategies and exit")
	jsonOut := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("config: %v", err)
	}

	var opts []engine.Option
	if *seed != 0 {
		opts = append(opts, engine.WithSimulatorOptions(diffusion.WithSeed(*seed)))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		fatal("engine: %v", err)
	}
	defer eng.Close()

	if *list {
		printStrategies(eng.Controller.Strategies(), *jsonOut)
		return
	}

	initial, err := initialState(eng.Store, *fields)
	if err != nil {
		fatal("state: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case *predict > 0:
		pred, err := eng.Controller.PredictOutcome(initial, *strategy, *predict)
		if err != nil {
			fatal("predict: %v", err)
		}
		if *jsonOut {
			printJSON(pred)
			return
		}
		fmt.Printf("Strategy:   %s (%d iterations)\n", pred.Strategy, pred.Horizon)
		fmt.Printf("Confidence: %.3f\n", pred.Confidence)
		fmt.Printf("Converges:  %.2f time units\n", pred.TimeToConvergence)
		printFields(initial, pred.Predicted)

	default:
		var res evolution.Result
		if *sequence != "" {
			res, err = eng.Controller.RunStrategySequence(ctx, initial, strings.Split(*sequence, ","), *maxIter)
		} else {
			res, err = eng.Controller.RunStrategy(ctx, initial, *strategy, *maxIter)
		}
		if err != nil {
			eng.Logger.Error("run failed", zap.Error(err))
			fatal("run: %v", err)
		}
		if *jsonOut {
			printJSON(summarize(res))
			return
		}
		fmt.Printf("Run:        %s\n", res.RunID)
		fmt.Printf("Strategies: %s\n", strings.Join(res.StrategiesApplied, " → "))
		fmt.Printf("Iterations: %d (converged=%v, failed stages=%d, retunes=%d)\n",
			res.Iterations, res.Converged, res.FailedStages, res.Retunes)
		fmt.Printf("Diffusion:  κ=%.3f σ=%.4f θ=%.3f\n", res.Parameters.Kappa, res.Parameters.Sigma, res.Parameters.Theta)
		if res.VersionID != "" {
			fmt.Printf("Version:    %s\n", res.VersionID)
		}
		printFields(res.Initial, res.Final)
	}
}

// #endregion main

// #region state

// initialState starts from the store's active version when there is one,
// otherwise from the default vector, then applies the -state overrides.
func initialState(store *state.Store, overrides string) (state.Vector, error) {
	v := state.DefaultVector()
	if cur, err := store.GetCurrent(); err == nil {
		v = cur.Vector.Clone()
	}
	if overrides == "" {
		return v, nil
	}
	for _, pair := range strings.Split(overrides, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return state.Vector{}, fmt.Errorf("malformed field %q, want name=value", pair)
		}
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return state.Vector{}, fmt.Errorf("field %s: %w", name, err)
		}
		if !state.IsKnownField(name) {
			return state.Vector{}, fmt.Errorf("unknown field %q", name)
		}
		v = v.With(name, x)
	}
	return v, nil
}

// #endregion state

// #region output

type runSummary struct {
	RunID      string             `json:"run_id"`
	Strategies []string           `json:"strategies"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Initial    map[string]float64 `json:"initial"`
	Final      map[string]float64 `json:"final"`
	Deltas     map[string]float64 `json:"deltas"`
	Kappa      float64            `json:"kappa"`
	Sigma      float64            `json:"sigma"`
	VersionID  string             `json:"version_id,omitempty"`
	Trajectory []float64          `json:"trajectory,omitempty"`
}

func summarize(res evolution.Result) runSummary {
	return runSummary{
		RunID:      res.RunID,
		Strategies: res.StrategiesApplied,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Initial:    res.Initial.Fields,
		Final:      res.Final.Fields,
		Deltas:     res.Deltas,
		Kappa:      res.Parameters.Kappa,
		Sigma:      res.Parameters.Sigma,
		VersionID:  res.VersionID,
		Trajectory: res.Trajectory.Values(),
	}
}

func printStrategies(catalog []evolution.Strategy, jsonOut bool) {
	if jsonOut {
		printJSON(catalog)
		return
	}
	fmt.Printf("%-24s  %-16s  %5s  %s\n", "Strategy", "Primary", "Cap", "Pipeline")
	for _, s := range catalog {
		fmt.Printf("%-24s  %-16s  %5d  %s\n", s.Name, s.Primary, s.MaxIterations, strings.Join(s.Pipeline, " → "))
	}
}

func printFields(before, after state.Vector) {
	fmt.Printf("\n%-16s  %8s  %8s  %8s\n", "Field", "Before", "After", "Delta")
	for _, name := range after.Names() {
		b := before.Value(name, 0)
		a := after.Fields[name]
		fmt.Printf("%-16s  %8.4f  %8.4f  %+8.4f\n", name, b, a, a-b)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("marshal json: %v", err)
	}
	fmt.Println(string(data))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// #endregion output
