package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	RunID        string
	VersionID    string
	Strategy     string
	TriggerType  string // "run" | "sequence"
	SnapshotJSON string
	Decision     string // "converged" | "exhausted" | "failed"
	Reason       string
	CreatedAt    time.Time
}

// #endregion provenance-entry

// #region run-record
// RunRecord captures the inputs and outcome of one evolution run.
// Serialized as JSON into provenance_log.snapshot_json so a run can be
// inspected after the fact.
type RunRecord struct {
	RunID      string             `json:"run_id"`
	Strategy   string             `json:"strategy"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Initial    map[string]float64 `json:"initial"`
	Final      map[string]float64 `json:"final"`
	Deltas     map[string]float64 `json:"deltas"`

	// Diffusion parameters at the end of the run
	Kappa float64 `json:"kappa"`
	Sigma float64 `json:"sigma"`
	Theta float64 `json:"theta"`

	// Stage failures skipped during the run
	FailedStages int `json:"failed_stages"`
	Retunes      int `json:"retunes"`
}

// #endregion run-record
