package state

import (
	"maps"
	"math"
	"sort"
	"time"
)

// #region constructors

// NewVector copies fields into a clamped Vector stamped now.
func NewVector(fields map[string]float64) Vector {
	v := Vector{Fields: make(map[string]float64, len(fields)), Timestamp: time.Now().UTC()}
	for k, x := range fields {
		v.Fields[k] = Clamp01(x)
	}
	return v
}

// DefaultVector sets every known field to 0.5.
func DefaultVector() Vector {
	fields := make(map[string]float64, len(KnownFields))
	for _, f := range KnownFields {
		fields[f] = 0.5
	}
	return NewVector(fields)
}

// #endregion constructors

// #region accessors

// Get returns the value of name and whether it is present.
func (v Vector) Get(name string) (float64, bool) {
	x, ok := v.Fields[name]
	return x, ok
}

// Value returns the value of name or def when absent.
func (v Vector) Value(name string, def float64) float64 {
	if x, ok := v.Fields[name]; ok {
		return x
	}
	return def
}

// Clone returns a deep copy.
func (v Vector) Clone() Vector {
	return Vector{Fields: maps.Clone(v.Fields), Timestamp: v.Timestamp}
}

// With returns a copy with name set to x, clamped.
func (v Vector) With(name string, x float64) Vector {
	out := v.Clone()
	if out.Fields == nil {
		out.Fields = map[string]float64{}
	}
	out.Fields[name] = Clamp01(x)
	return out
}

// Names returns the field names in sorted order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// #endregion accessors

// #region arithmetic

// Clamp forces every field into [0,1] in place.
func (v Vector) Clamp() {
	for k, x := range v.Fields {
		v.Fields[k] = Clamp01(x)
	}
}

// Delta returns v − base for every field present in either vector. A field
// missing on one side counts as 0 there.
func (v Vector) Delta(base Vector) map[string]float64 {
	out := make(map[string]float64, len(v.Fields))
	for k, x := range v.Fields {
		out[k] = x - base.Fields[k]
	}
	for k, x := range base.Fields {
		if _, ok := v.Fields[k]; !ok {
			out[k] = -x
		}
	}
	return out
}

// Norm returns the L2 norm of a delta map.
func Norm(delta map[string]float64) float64 {
	var sum float64
	for _, d := range delta {
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Clamp01 clamps x into [0,1]; NaN becomes 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion arithmetic
