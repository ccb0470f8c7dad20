package orchestrator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStageMemory_RecordAndTally(t *testing.T) {
	db := newTestDB(t)
	mem, err := NewStageMemory(db)
	if err != nil {
		t.Fatal(err)
	}

	// No data → empty result
	tallies, err := mem.Tallies([]string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tallies) != 0 {
		t.Errorf("expected no tallies, got %v", tallies)
	}

	for i, ok := range []bool{true, true, false} {
		err := mem.RecordOutcome(StageOutcome{
			SessionID: "s1", OperatorID: "a", Position: i,
			Success: ok, Confidence: 0.8, Duration: 3 * time.Millisecond,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := mem.RecordOutcome(StageOutcome{SessionID: "s1", OperatorID: "b", Success: true}); err != nil {
		t.Fatal(err)
	}

	tallies, err = mem.Tallies([]string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if tallies["a"] != (Tally{Successes: 2, Failures: 1}) {
		t.Errorf("unexpected tally for a: %+v", tallies["a"])
	}
	if _, ok := tallies["b"]; ok {
		t.Error("b was not requested")
	}
}

func TestStageMemory_Recent(t *testing.T) {
	db := newTestDB(t)
	mem, err := NewStageMemory(db)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		err := mem.RecordOutcome(StageOutcome{
			SessionID: "s", OperatorID: "a", Position: i,
			Success: i != 1, Error: map[bool]string{true: "", false: "boom"}[i != 1],
			Duration: 1500 * time.Microsecond,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	recent, err := mem.Recent("a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(recent))
	}
	if recent[0].Position != 2 || recent[1].Position != 1 {
		t.Errorf("expected newest first, got positions %d, %d", recent[0].Position, recent[1].Position)
	}
	if recent[1].Success || recent[1].Error != "boom" {
		t.Errorf("unexpected failed row: %+v", recent[1])
	}
	if recent[0].Duration != 1500*time.Microsecond {
		t.Errorf("duration round trip: %v", recent[0].Duration)
	}
}

func TestOrchestratorRecordsAndOptimizesFromMemory(t *testing.T) {
	db := newTestDB(t)
	mem, err := NewStageMemory(db)
	if err != nil {
		t.Fatal(err)
	}
	reg := newRegistry(t,
		testOp{id: "flaky", exec: failing},
		testOp{id: "solid", exec: constant(map[string]float64{"quality": 0.5}, 1)},
	)
	o := New(reg, WithMemory(mem))

	for i := 0; i < 2; i++ {
		if _, err := o.Synthesize(context.Background(), request("flaky", "solid")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := o.OptimizeFromMemory([]string{"flaky", "solid"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"solid", "flaky"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	recent, err := mem.Recent("solid", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 row, got %d", len(recent))
	}
	var v structpb.Value
	if err := protojson.Unmarshal([]byte(recent[0].PayloadJSON), &v); err != nil {
		t.Fatalf("payload snapshot %q: %v", recent[0].PayloadJSON, err)
	}
	if q := v.GetStructValue().GetFields()["quality"].GetNumberValue(); q != 0.5 {
		t.Errorf("expected quality 0.5 in snapshot, got %v", q)
	}
}

func TestOptimizeFromMemoryWithoutMemory(t *testing.T) {
	o := New(newRegistry(t))
	got, err := o.OptimizeFromMemory([]string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, got); diff != "" {
		t.Errorf("order changed (-want +got):\n%s", diff)
	}
}

func TestSnapshotPayload(t *testing.T) {
	if got := snapshotPayload(nil); got != "" {
		t.Errorf("nil payload: %q", got)
	}
	if got := snapshotPayload(struct{}{}); got != "" {
		t.Errorf("unsupported payload should be empty, got %q", got)
	}
	var v structpb.Value
	if err := protojson.Unmarshal([]byte(snapshotPayload("text")), &v); err != nil || v.GetStringValue() != "text" {
		t.Errorf("string payload did not round trip: %v", err)
	}
}
