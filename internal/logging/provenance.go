package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema
const provenanceSchema = `
CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	version_id    TEXT,
	strategy      TEXT NOT NULL,
	trigger_type  TEXT NOT NULL,
	snapshot_json TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
`

// EnsureSchema creates the provenance_log table if it does not exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(provenanceSchema); err != nil {
		return fmt.Errorf("migrate provenance: %w", err)
	}
	return nil
}

// #endregion schema

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (run_id, version_id, strategy, trigger_type, snapshot_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		nullIfEmpty(entry.VersionID),
		entry.Strategy,
		entry.TriggerType,
		nullIfEmpty(entry.SnapshotJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region list-decisions
// ListDecisions returns provenance entries for strategy, oldest first. An
// empty strategy lists every entry.
func ListDecisions(db *sql.DB, strategy string, limit int) ([]ProvenanceEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, version_id, strategy, trigger_type, snapshot_json, decision, reason, created_at
		 FROM provenance_log WHERE (? = '' OR strategy = ?) ORDER BY id ASC LIMIT ?`,
		strategy, strategy, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var versionID, snapshot, reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &versionID, &e.Strategy, &e.TriggerType, &snapshot, &e.Decision, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.VersionID = versionID.String
		e.SnapshotJSON = snapshot.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-decisions

// #region snapshot
// Snapshot serializes a RunRecord for ProvenanceEntry.SnapshotJSON.
func Snapshot(rec RunRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	return string(b), nil
}

// ParseSnapshot is the inverse of Snapshot.
func ParseSnapshot(s string) (RunRecord, error) {
	var rec RunRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return RunRecord{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return rec, nil
}

// #endregion snapshot

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
