package state

import "time"

// #region fields

// Named fields tracked by the evolution controller. Every value lives in [0,1].
const (
	FieldQuality         = "quality"
	FieldCoherence       = "coherence"
	FieldConsistency     = "consistency"
	FieldDebt            = "debt"
	FieldMaintainability = "maintainability"
)

// KnownFields lists every field a Vector carries by default.
var KnownFields = []string{
	FieldQuality,
	FieldCoherence,
	FieldConsistency,
	FieldDebt,
	FieldMaintainability,
}

// IsKnownField reports whether name is one of KnownFields.
func IsKnownField(name string) bool {
	for _, f := range KnownFields {
		if f == name {
			return true
		}
	}
	return false
}

// #endregion fields

// #region vector

// Vector is a set of named scalars in [0,1] stamped with the time it was taken.
type Vector struct {
	Fields    map[string]float64 `json:"fields" yaml:"fields"`
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
}

// #endregion vector

// #region state-record

// StateRecord is a versioned snapshot of a Vector.
type StateRecord struct {
	VersionID   string
	ParentID    string
	Vector      Vector
	Source      string // strategy or caller that produced the version
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion state-record
