package registry

import (
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
)

// #region colors

type color uint8

const (
	unvisited color = iota
	visiting
	visited
)

// #endregion

// #region validate-graph

// ValidateDependencyGraph walks every operator's dependencies depth-first.
// Meeting a node that is still being visited is a cycle; a dependency id that
// is not registered is unresolved. On success the registry is sealed and no
// further registrations are accepted.
func (r *Registry) ValidateDependencyGraph() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	marks := make(map[string]color, len(r.entries))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case visited:
			return nil
		case visiting:
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), id)
			return operator.Errorf(operator.KindCyclicDependency, "validate", id,
				"cycle %s", strings.Join(cycle, " -> "))
		}

		marks[id] = visiting
		path = append(path, id)
		for _, dep := range r.entries[id].Descriptor.Dependencies {
			if _, ok := r.entries[dep]; !ok {
				return operator.Errorf(operator.KindUnresolvedDependency, "validate", id,
					"dependency %q is not registered", dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		marks[id] = visited
		return nil
	}

	for _, id := range r.order {
		if err := visit(id); err != nil {
			r.logger.Error("dependency graph invalid", zap.Error(err))
			return err
		}
	}

	r.sealed = true
	r.logger.Info("dependency graph validated", zap.Int("operators", len(r.entries)))
	return nil
}

// #endregion

// #region topological

// Closure returns id's transitive dependencies in an order where every
// dependency precedes its dependents, followed by id itself. Only meaningful
// after ValidateDependencyGraph.
func (r *Registry) Closure(id string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.entries[id]; !ok {
		return nil, operator.Errorf(operator.KindNotFound, "closure", id, "operator is not registered")
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(cur string) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		for _, dep := range r.entries[cur].Descriptor.Dependencies {
			if _, ok := r.entries[dep]; ok {
				walk(dep)
			}
		}
		out = append(out, cur)
	}
	walk(id)
	return out, nil
}

// #endregion
