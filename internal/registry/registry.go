// Package registry owns the operator table, its secondary indices and the
// dependency graph, and executes single operators under a deadline.
//
// Lifecycle: Register every operator, call ValidateDependencyGraph once, then
// execute. After validation the registry is sealed and safe for concurrent
// readers.
package registry

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

// #region validator

var descriptorValidate = validator.New()

// #endregion

// #region registry-struct

// Registry is the single source of registered operators.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]operator.Entry
	order      []string
	byCategory map[operator.Category][]string
	byTriad    map[operator.Triad][]string
	byScope    map[string][]string
	sealed     bool

	timeout time.Duration
	logger  *zap.Logger
}

// New creates an empty, unsealed registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:    make(map[string]operator.Entry),
		byCategory: make(map[operator.Category][]string),
		byTriad:    make(map[operator.Triad][]string),
		byScope:    make(map[string][]string),
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the configured per-operator deadline.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// #endregion

// #region register

// Register validates desc and stores it under id with its executable.
func (r *Registry) Register(id string, desc operator.Descriptor, exec operator.Executable) error {
	if err := validateDescriptor(id, desc); err != nil {
		return err
	}
	if exec == nil {
		return operator.Errorf(operator.KindValidation, "register", id, "executable is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return operator.Errorf(operator.KindValidation, "register", id, "registry is sealed")
	}
	if _, exists := r.entries[id]; exists {
		return operator.Errorf(operator.KindValidation, "register", id, "operator already registered")
	}

	desc.Parameters = slices.Clone(desc.Parameters)
	desc.Dependencies = slices.Clone(desc.Dependencies)
	r.entries[id] = operator.Entry{Descriptor: desc, Executable: exec}
	r.order = append(r.order, id)
	r.byCategory[desc.Category] = append(r.byCategory[desc.Category], id)
	r.byTriad[desc.Triad] = append(r.byTriad[desc.Triad], id)
	r.byScope[desc.Scope] = append(r.byScope[desc.Scope], id)

	r.logger.Debug("operator registered",
		zap.String("operator", id),
		zap.String("category", string(desc.Category)),
		zap.String("triad", string(desc.Triad)),
		zap.Strings("dependencies", desc.Dependencies))
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(id string, desc operator.Descriptor, exec operator.Executable) {
	if err := r.Register(id, desc, exec); err != nil {
		panic(err)
	}
}

// validateDescriptor checks the registration key and the descriptor's
// field constraints.
func validateDescriptor(id string, desc operator.Descriptor) error {
	if id == "" || desc.ID != id {
		return operator.Errorf(operator.KindValidation, "register", id,
			"descriptor id %q does not match registration key", desc.ID)
	}
	if err := descriptorValidate.Struct(desc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return operator.Errorf(operator.KindValidation, "register", id,
				"field %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return operator.Wrap(operator.KindValidation, "register", id, err)
	}
	return nil
}

// #endregion

// #region accessors

// Get returns the entry registered under id.
func (r *Registry) Get(id string) (operator.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns operator ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// ByCategory returns the descriptors in category c.
func (r *Registry) ByCategory(c operator.Category) []operator.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptorsLocked(r.byCategory[c])
}

// ByTriad returns the descriptors in triad t.
func (r *Registry) ByTriad(t operator.Triad) []operator.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptorsLocked(r.byTriad[t])
}

// ByScope returns the descriptors tagged with scope.
func (r *Registry) ByScope(scope string) []operator.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptorsLocked(r.byScope[scope])
}

func (r *Registry) descriptorsLocked(ids []string) []operator.Descriptor {
	out := make([]operator.Descriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id].Descriptor)
	}
	return out
}

// Sealed reports whether ValidateDependencyGraph has succeeded.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// #endregion

// #region statistics

// Statistics aggregates counts and means over every registered operator.
func (r *Registry) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{
		Total:      len(r.entries),
		ByCategory: make(map[operator.Category]int, len(r.byCategory)),
		ByTriad:    make(map[operator.Triad]int, len(r.byTriad)),
		ByScope:    make(map[string]int, len(r.byScope)),
	}
	for c, ids := range r.byCategory {
		stats.ByCategory[c] = len(ids)
	}
	for t, ids := range r.byTriad {
		stats.ByTriad[t] = len(ids)
	}
	for s, ids := range r.byScope {
		stats.ByScope[s] = len(ids)
	}
	if stats.Total == 0 {
		return stats
	}

	var complexity, stability float64
	for _, e := range r.entries {
		complexity += float64(e.Descriptor.Complexity)
		stability += e.Descriptor.Stability
	}
	stats.MeanComplexity = complexity / float64(stats.Total)
	stats.MeanStability = stability / float64(stats.Total)
	return stats
}

// Scopes returns the distinct scope tags, sorted.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byScope))
	for s := range r.byScope {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// #endregion
