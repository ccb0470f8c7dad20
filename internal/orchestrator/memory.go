package orchestrator

// #region imports
import (
	"database/sql"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// #endregion

// #region schema

const stageOutcomesSchema = `
CREATE TABLE IF NOT EXISTS stage_outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL,
    operator_id   TEXT NOT NULL,
    position      INTEGER NOT NULL,
    success       INTEGER NOT NULL DEFAULT 0,
    confidence    REAL NOT NULL DEFAULT 0,
    duration_us   INTEGER NOT NULL DEFAULT 0,
    payload_json  TEXT,
    error         TEXT,
    created_at    TEXT NOT NULL
);
`

const stageOutcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_stage_outcomes_operator
ON stage_outcomes(operator_id);
`

// #endregion

// #region memory-struct

// StageMemory keeps every stage outcome in SQLite so pipelines can be
// reordered by observed success.
type StageMemory struct {
	db *sql.DB
}

// NewStageMemory initializes the stage_outcomes table and returns a StageMemory.
func NewStageMemory(db *sql.DB) (*StageMemory, error) {
	if _, err := db.Exec(stageOutcomesSchema); err != nil {
		return nil, fmt.Errorf("migrate stage outcomes: %w", err)
	}
	if _, err := db.Exec(stageOutcomesIndex); err != nil {
		return nil, fmt.Errorf("index stage outcomes: %w", err)
	}
	return &StageMemory{db: db}, nil
}

// #endregion

// #region record-outcome

// RecordOutcome persists a single stage outcome row.
func (m *StageMemory) RecordOutcome(rec StageOutcome) error {
	success := 0
	if rec.Success {
		success = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := m.db.Exec(`
		INSERT INTO stage_outcomes
		(session_id, operator_id, position, success, confidence, duration_us, payload_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.OperatorID,
		rec.Position,
		success,
		rec.Confidence,
		rec.Duration.Microseconds(),
		nullIfEmpty(rec.PayloadJSON),
		nullIfEmpty(rec.Error),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// #endregion

// #region tallies

// Tallies returns success/failure counts per operator id. Ids with no rows
// are absent from the map.
func (m *StageMemory) Tallies(ids []string) (map[string]Tally, error) {
	rows, err := m.db.Query(`
		SELECT operator_id, SUM(success), COUNT(*) - SUM(success)
		FROM stage_outcomes
		GROUP BY operator_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := make(map[string]Tally)
	for rows.Next() {
		var id string
		var t Tally
		if err := rows.Scan(&id, &t.Successes, &t.Failures); err != nil {
			return nil, err
		}
		if want[id] {
			out[id] = t
		}
	}
	return out, rows.Err()
}

// #endregion

// #region recent

// Recent returns the latest outcomes for operatorID, newest first.
func (m *StageMemory) Recent(operatorID string, limit int) ([]StageOutcome, error) {
	rows, err := m.db.Query(`
		SELECT session_id, operator_id, position, success, confidence, duration_us, payload_json, error, created_at
		FROM stage_outcomes
		WHERE operator_id = ?
		ORDER BY id DESC LIMIT ?`,
		operatorID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StageOutcome
	for rows.Next() {
		var rec StageOutcome
		var success int
		var durationUS int64
		var payload, errText sql.NullString
		var createdAtStr string
		if err := rows.Scan(&rec.SessionID, &rec.OperatorID, &rec.Position, &success,
			&rec.Confidence, &durationUS, &payload, &errText, &createdAtStr); err != nil {
			return nil, err
		}
		rec.Success = success == 1
		rec.Duration = time.Duration(durationUS) * time.Microsecond
		rec.PayloadJSON = payload.String
		rec.Error = errText.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion

// #region payload-snapshot

// snapshotPayload renders a stage payload as protobuf JSON. Payloads that
// have no structpb form are stored as "".
func snapshotPayload(p any) string {
	if p == nil {
		return ""
	}
	if m, ok := p.(map[string]float64); ok {
		generic := make(map[string]any, len(m))
		for k, v := range m {
			generic[k] = v
		}
		p = generic
	}
	v, err := structpb.NewValue(p)
	if err != nil {
		return ""
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion
