package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the evolution database")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	strategy := flag.String("strategy", "", "list provenance for one strategy instead of versions")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/evolution.db [--last N] [--version id] [--strategy name] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := logging.EnsureSchema(store.DB()); err != nil {
		fmt.Fprintf(os.Stderr, "provenance schema: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *version != "":
		err = runDetailMode(store, *version, *jsonOut)
	case *strategy != "":
		err = runDecisionMode(store, *strategy, *last, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID string             `json:"version_id"`
	Source    string             `json:"source"`
	DeltaNorm *float64           `json:"delta_norm,omitempty"`
	CreatedAt string             `json:"created_at"`
	Fields    map[string]float64 `json:"fields"`
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		row := listRow{
			VersionID: v.VersionID,
			Source:    v.Source,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
			Fields:    v.Vector.Fields,
		}
		if v.ParentID != "" {
			if parent, err := store.GetVersion(v.ParentID); err == nil {
				dn := state.Norm(v.Vector.Delta(parent.Vector))
				row.DeltaNorm = &dn
			}
		}
		rows[len(versions)-1-i] = row
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-24s  %8s", "Version", "Source", "Delta")
	for _, f := range state.KnownFields {
		fmt.Printf("  %8.8s", f)
	}
	fmt.Printf("  %s\n", "Time")
	for _, r := range rows {
		delta := "—"
		if r.DeltaNorm != nil {
			delta = fmt.Sprintf("%.4f", *r.DeltaNorm)
		}
		fmt.Printf("%-10s  %-24s  %8s", shortID(r.VersionID), r.Source, delta)
		for _, f := range state.KnownFields {
			if x, ok := r.Fields[f]; ok {
				fmt.Printf("  %8.4f", x)
			} else {
				fmt.Printf("  %8s", "—")
			}
		}
		fmt.Printf("  %s\n", r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID string                    `json:"version_id"`
	ParentID  string                    `json:"parent_id"`
	Source    string                    `json:"source"`
	CreatedAt string                    `json:"created_at"`
	Fields    map[string]float64        `json:"fields"`
	Decisions []logging.ProvenanceEntry `json:"decisions,omitempty"`
	Run       *logging.RunRecord        `json:"run,omitempty"`
}

func runDetailMode(store *state.Store, versionID string, jsonOut bool) error {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}
	out := detailOutput{
		VersionID: v.VersionID,
		ParentID:  v.ParentID,
		Source:    v.Source,
		CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Fields:    v.Vector.Fields,
	}
	if v.MetricsJSON != "" {
		if rec, err := logging.ParseSnapshot(v.MetricsJSON); err == nil {
			out.Run = &rec
		}
	}

	all, err := logging.ListDecisions(store.DB(), "", -1)
	if err != nil {
		return err
	}
	for _, e := range all {
		if e.VersionID == versionID {
			out.Decisions = append(out.Decisions, e)
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Version:  %s\n", out.VersionID)
	fmt.Printf("Parent:   %s\n", out.ParentID)
	fmt.Printf("Source:   %s\n", out.Source)
	fmt.Printf("Created:  %s\n", out.CreatedAt)

	fmt.Printf("\nFields:\n")
	for _, name := range v.Vector.Names() {
		fmt.Printf("  %-16s %.4f\n", name, v.Vector.Fields[name])
	}

	if out.Run != nil {
		fmt.Printf("\nRun %s:\n", out.Run.RunID)
		fmt.Printf("  Iterations:    %d (converged=%v)\n", out.Run.Iterations, out.Run.Converged)
		fmt.Printf("  Diffusion:     κ=%.3f σ=%.4f θ=%.3f\n", out.Run.Kappa, out.Run.Sigma, out.Run.Theta)
		fmt.Printf("  Failed stages: %d\n", out.Run.FailedStages)
		fmt.Printf("  Retunes:       %d\n", out.Run.Retunes)
	}

	for _, d := range out.Decisions {
		fmt.Printf("\n[%s] %s: %s\n", d.TriggerType, d.Decision, d.Reason)
	}
	return nil
}

// #endregion detail-mode

// #region decision-mode

func runDecisionMode(store *state.Store, strategy string, last int, jsonOut bool) error {
	entries, err := logging.ListDecisions(store.DB(), strategy, last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}
	fmt.Printf("%-10s  %-10s  %-8s  %-10s  %s\n", "Run", "Version", "Trigger", "Decision", "Reason")
	for _, e := range entries {
		fmt.Printf("%-10s  %-10s  %-8s  %-10s  %s\n",
			shortID(e.RunID), shortID(e.VersionID), e.TriggerType, e.Decision, e.Reason)
	}
	return nil
}

// #endregion decision-mode

// #region output

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
