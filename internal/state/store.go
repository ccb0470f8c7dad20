package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS state_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	fields_json   TEXT NOT NULL,
	source        TEXT,
	taken_at      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES state_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES state_versions(version_id)
);
`

// Fixed-width so created_at orders lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct

// Store keeps versioned Vector snapshots in SQLite. The default DSN is
// ":memory:", so snapshots live only as long as the process.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens dsn and runs migrations.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every pooled connection to ":memory:" would get its own empty database.
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor

// DB returns the underlying *sql.DB so other components (stage memory,
// provenance) share one connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-initial

// CreateInitialState stores v as a root version and makes it active.
func (s *Store) CreateInitialState(v Vector, source string) (StateRecord, error) {
	rec := StateRecord{
		VersionID: uuid.New().String(),
		Vector:    v.Clone(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if rec.Vector.Timestamp.IsZero() {
		rec.Vector.Timestamp = rec.CreatedAt
	}
	if err := s.CommitState(rec); err != nil {
		return StateRecord{}, err
	}
	return rec, nil
}

// #endregion create-initial

// #region get-current

// GetCurrent reads the active state version.
func (s *Store) GetCurrent() (StateRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_state WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return StateRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version

// GetVersion retrieves a specific state version by ID.
func (s *Store) GetVersion(id string) (StateRecord, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, fields_json, source, taken_at, created_at, metrics_json
		 FROM state_versions WHERE version_id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return StateRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region commit-state

// CommitState inserts a new version and points the active row at it in one
// transaction.
func (s *Store) CommitState(rec StateRecord) error {
	fieldsJSON, err := encodeFields(rec.Vector.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	takenAt := rec.Vector.Timestamp
	if takenAt.IsZero() {
		takenAt = rec.CreatedAt
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO state_versions (version_id, parent_id, fields_json, source, taken_at, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), fieldsJSON, nullIfEmpty(rec.Source),
		takenAt.UTC().Format(timeLayout), rec.CreatedAt.UTC().Format(timeLayout), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_state (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}

// #endregion commit-state

// #region rollback

// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM state_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_state SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions

// ListVersions returns the most recent state versions, newest first.
func (s *Store) ListVersions(limit int) ([]StateRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, fields_json, source, taken_at, created_at, metrics_json
		 FROM state_versions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []StateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region encoding

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (StateRecord, error) {
	var rec StateRecord
	var parentID, source, metricsJSON sql.NullString
	var fieldsJSON, takenStr, createdStr string

	if err := row.Scan(&rec.VersionID, &parentID, &fieldsJSON, &source, &takenStr, &createdStr, &metricsJSON); err != nil {
		return StateRecord{}, err
	}
	fields, err := decodeFields(fieldsJSON)
	if err != nil {
		return StateRecord{}, fmt.Errorf("decode fields: %w", err)
	}
	rec.ParentID = parentID.String
	rec.Source = source.String
	rec.MetricsJSON = metricsJSON.String
	rec.Vector.Fields = fields
	rec.Vector.Timestamp, _ = time.Parse(timeLayout, takenStr)
	rec.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return rec, nil
}

// encodeFields serializes a field map as a protobuf Struct in JSON form.
func encodeFields(fields map[string]float64) (string, error) {
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return "", err
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFields(s string) (map[string]float64, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal([]byte(s), &st); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(st.GetFields()))
	for k, v := range st.GetFields() {
		out[k] = v.GetNumberValue()
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion encoding
