package logging

import (
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:        "r1",
		VersionID:    "v1",
		Strategy:     "quality-improvement",
		TriggerType:  "run",
		SnapshotJSON: `{"iterations":12}`,
		Decision:     "converged",
		Reason:       "all thresholds met",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	err := LogDecision(db, entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, decision string
	db.QueryRow("SELECT run_id, decision FROM provenance_log").Scan(&runID, &decision)
	if runID != "r1" {
		t.Errorf("expected run_id 'r1', got %q", runID)
	}
	if decision != "converged" {
		t.Errorf("expected decision 'converged', got %q", decision)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:       "r2",
		Strategy:    "debt-reduction",
		TriggerType: "sequence",
		Decision:    "exhausted",
	}

	before := time.Now().UTC()
	err := LogDecision(db, entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:       "r3",
		Strategy:    "s",
		TriggerType: "run",
		Decision:    "failed",
	}

	err := LogDecision(db, entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var versionID, snapshot, reason sql.NullString
	db.QueryRow("SELECT version_id, snapshot_json, reason FROM provenance_log").Scan(
		&versionID, &snapshot, &reason,
	)
	if versionID.Valid {
		t.Error("expected NULL version_id for empty string")
	}
	if snapshot.Valid {
		t.Error("expected NULL snapshot_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	entry := ProvenanceEntry{
		RunID:       "r4",
		Strategy:    "s",
		TriggerType: "run",
		Decision:    "converged",
	}

	err := LogDecision(db, entry)
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region list-decisions-tests
func TestListDecisions_FilterAndOrder(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for i, s := range []string{"a", "b", "a"} {
		err := LogDecision(db, ProvenanceEntry{
			RunID:       string(rune('x' + i)),
			Strategy:    s,
			TriggerType: "run",
			Decision:    "converged",
		})
		if err != nil {
			t.Fatalf("LogDecision: %v", err)
		}
	}

	got, err := ListDecisions(db, "a", 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].RunID != "x" || got[1].RunID != "z" {
		t.Errorf("unexpected order: %q, %q", got[0].RunID, got[1].RunID)
	}

	all, err := ListDecisions(db, "", 10)
	if err != nil {
		t.Fatalf("ListDecisions all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries, got %d", len(all))
	}
}

// #endregion list-decisions-tests

// #region snapshot-tests
func TestSnapshotRoundTrip(t *testing.T) {
	rec := RunRecord{
		RunID:      "r",
		Strategy:   "quality-improvement",
		Iterations: 7,
		Converged:  true,
		Final:      map[string]float64{"quality": 0.91},
		Kappa:      0.6,
	}
	s, err := Snapshot(rec)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	back, err := ParseSnapshot(s)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if back.Iterations != 7 || !back.Converged || back.Final["quality"] != 0.91 {
		t.Errorf("unexpected round trip: %+v", back)
	}
	if _, err := ParseSnapshot("{"); err == nil {
		t.Error("expected error on malformed snapshot")
	}
}

// #endregion snapshot-tests

// #region logger-tests
func TestNewLogger(t *testing.T) {
	l, err := New("debug", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug enabled")
	}
	if _, err := New("loud", false); err == nil {
		t.Error("expected error on unknown level")
	}
}

// #endregion logger-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
